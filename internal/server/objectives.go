package server

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/logging"
	"github.com/copyleftdev/TALUS/internal/optimization"
	"github.com/copyleftdev/TALUS/internal/optimization/acquisition"
	"github.com/copyleftdev/TALUS/internal/optimization/gp"
	"github.com/copyleftdev/TALUS/internal/optimization/kernels"
	"github.com/copyleftdev/TALUS/internal/optimization/maximizer"
)

// Objective is a named benchmark function with its natural domain.
type Objective struct {
	Name        string
	Description string
	Lower       []float64
	Upper       []float64
	Goal        optimization.Goal
	Func        func(x []float64) float64
}

// builtinObjectives is the benchmark registry served over the API. All are
// minimization problems.
var builtinObjectives = map[string]Objective{
	"sphere": {
		Name:        "sphere",
		Description: "sum of squares, global minimum 0 at the origin",
		Lower:       []float64{-5, -5},
		Upper:       []float64{5, 5},
		Goal:        optimization.Minimize,
		Func: func(x []float64) float64 {
			sum := 0.0
			for _, v := range x {
				sum += v * v
			}
			return sum
		},
	},
	"rastrigin": {
		Name:        "rastrigin",
		Description: "highly multimodal, global minimum 0 at the origin",
		Lower:       []float64{-5.12, -5.12},
		Upper:       []float64{5.12, 5.12},
		Goal:        optimization.Minimize,
		Func: func(x []float64) float64 {
			sum := 10.0 * float64(len(x))
			for _, v := range x {
				sum += v*v - 10*math.Cos(2*math.Pi*v)
			}
			return sum
		},
	},
	"sinpoly": {
		Name:        "sinpoly",
		Description: "sin(3x)*4(x-1)(x+2) on [0, 6], one dimensional",
		Lower:       []float64{0},
		Upper:       []float64{6},
		Goal:        optimization.Minimize,
		Func: func(x []float64) float64 {
			return math.Sin(3*x[0]) * 4 * (x[0] - 1) * (x[0] + 2)
		},
	},
}

// LookupObjective returns a registered benchmark objective.
func LookupObjective(name string) (Objective, bool) {
	obj, ok := builtinObjectives[name]
	return obj, ok
}

// ObjectiveNames lists the registered benchmark objectives, sorted.
func ObjectiveNames() []string {
	names := make([]string, 0, len(builtinObjectives))
	for name := range builtinObjectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildTask wraps a benchmark objective as an optimization task.
func BuildTask(obj Objective) (*optimization.Task, error) {
	dom, err := optimization.NewDomain(obj.Lower, obj.Upper)
	if err != nil {
		return nil, err
	}
	fn := obj.Func
	return optimization.NewTask(obj.Name, dom, func(X *mat.Dense) (*mat.VecDense, error) {
		rows, _ := X.Dims()
		y := mat.NewVecDense(rows, nil)
		for i := 0; i < rows; i++ {
			y.SetVec(i, fn(mat.Row(nil, i, X)))
		}
		return y, nil
	})
}

// RunSpec describes the components of one optimization run.
type RunSpec struct {
	Objective   string  `json:"objective"`
	Acquisition string  `json:"acquisition,omitempty"`
	Maximizer   string  `json:"maximizer,omitempty"`
	Iterations  int     `json:"iterations,omitempty"`
	Xi          float64 `json:"xi,omitempty"`
	Beta        float64 `json:"beta,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
}

// BuildAcquisition maps a spec name to an acquisition function.
func BuildAcquisition(spec RunSpec, goal optimization.Goal) (optimization.AcquisitionFunction, error) {
	switch spec.Acquisition {
	case "", "ei":
		return acquisition.NewExpectedImprovement(optimization.BestObserved(goal), spec.Xi, goal)
	case "pi":
		return acquisition.NewProbabilityOfImprovement(optimization.BestObserved(goal), spec.Xi, goal)
	case "ucb":
		beta := spec.Beta
		if beta == 0 {
			beta = 2.0
		}
		return acquisition.NewConfidenceBound(beta, goal)
	default:
		return nil, optimization.NewErrorf(optimization.KindUnknown,
			"unknown acquisition function %q", spec.Acquisition).
			WithComponent("server").WithOperation("build_acquisition")
	}
}

// BuildMaximizer maps a spec name to an acquisition maximizer.
func BuildMaximizer(spec RunSpec) (optimization.Maximizer, error) {
	switch spec.Maximizer {
	case "", "grid":
		return maximizer.NewGrid(101)
	case "restart":
		return maximizer.NewRandomRestart(10, rand.New(rand.NewSource(spec.Seed+1)))
	case "cmaes":
		return maximizer.NewCMAES(uint64(spec.Seed)+1, 0, 0)
	case "mayfly":
		return maximizer.NewMayfly(50, 20, spec.Seed+1)
	default:
		return nil, optimization.NewErrorf(optimization.KindUnknown,
			"unknown maximizer %q", spec.Maximizer).
			WithComponent("server").WithOperation("build_maximizer")
	}
}

// BuildModel constructs the default surrogate: a Matern 5/2 Gaussian
// process with a small noise floor. Fit diagnostics go to logger through
// the zap adapter; a nil logger discards them.
func BuildModel(spec RunSpec, logger *logging.Logger) *gp.GP {
	if logger == nil {
		logger = logging.Discard()
	}
	return gp.New(kernels.NewMatern52(1.0, 1.0), 1e-6,
		gp.WithLogger(logging.NewZapLogger(logger)),
		gp.WithHyperparameterRestarts(2),
		gp.WithRNG(rand.New(rand.NewSource(spec.Seed+2))))
}
