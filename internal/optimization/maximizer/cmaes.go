package maximizer

import (
	"context"
	"math"
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// CMAES wraps gonum's Cholesky CMA-ES as an acquisition maximizer: a
// stochastic population search that needs no gradient and handles
// multimodal acquisition surfaces well. Reproducible for a fixed seed.
type CMAES struct {
	seed       uint64
	population int
	budget     int
}

// NewCMAES creates a CMA-ES maximizer. population 0 lets gonum pick the
// default 4 + 3*ln(d); budget caps acquisition evaluations per Maximize
// call (0 means 2000).
func NewCMAES(seed uint64, population, budget int) (*CMAES, error) {
	if population < 0 || budget < 0 {
		return nil, optimization.NewError(optimization.KindMaximization,
			"population and budget must not be negative").
			WithComponent("cmaes_maximizer").WithOperation("new")
	}
	if budget == 0 {
		budget = 2000
	}
	return &CMAES{seed: seed, population: population, budget: budget}, nil
}

// Maximize runs one CMA-ES search from the domain center.
func (c *CMAES) Maximize(ctx context.Context, acq optimization.AcquisitionFunction, dom optimization.Domain) ([]float64, error) {
	lower, upper := dom.Lower(), dom.Upper()
	d := dom.Dim()

	start := make([]float64, d)
	stepSize := 0.0
	for i := 0; i < d; i++ {
		start[i] = (lower[i] + upper[i]) / 2
		stepSize = math.Max(stepSize, (upper[i]-lower[i])/4)
	}

	// Contract errors must propagate before the search hides them.
	if _, err := scoreAt(acq, start); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	problem := optimize.Problem{Func: negScore(acq, dom)}
	method := &optimize.CmaEsChol{
		InitStepSize: stepSize,
		Population:   c.population,
		Src:          randv2.NewPCG(c.seed, c.seed+1),
	}
	settings := &optimize.Settings{
		FuncEvaluations: c.budget,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, start, settings, method)
	if err != nil || result == nil || math.IsInf(result.F, 1) {
		return nil, errNoCandidate("cmaes_maximizer", err)
	}
	return dom.Clamp(result.X), nil
}
