package maximizer

import (
	"context"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// Mayfly adapts the mayfly swarm optimizer as an acquisition maximizer.
// The library only supports a single scalar bound pair, so the search runs
// over the unit box and candidates are mapped affinely into the domain.
// Reproducible for a fixed seed.
type Mayfly struct {
	iterations int
	population int
	seed       int64
}

// NewMayfly creates a mayfly swarm maximizer.
func NewMayfly(iterations, population int, seed int64) (*Mayfly, error) {
	if iterations < 1 || population < 2 {
		return nil, optimization.NewError(optimization.KindMaximization,
			"mayfly needs at least 1 iteration and a population of 2").
			WithComponent("mayfly_maximizer").WithOperation("new")
	}
	return &Mayfly{iterations: iterations, population: population, seed: seed}, nil
}

// Maximize runs one swarm search over the unit box.
func (m *Mayfly) Maximize(ctx context.Context, acq optimization.AcquisitionFunction, dom optimization.Domain) ([]float64, error) {
	lower, upper := dom.Lower(), dom.Upper()
	d := dom.Dim()

	fromUnit := func(u []float64) []float64 {
		x := make([]float64, d)
		for i := 0; i < d; i++ {
			ui := math.Min(1, math.Max(0, u[i]))
			x[i] = lower[i] + ui*(upper[i]-lower[i])
		}
		return x
	}

	// Contract errors must propagate before the search hides them.
	if _, err := scoreAt(acq, fromUnit(make([]float64, d))); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		s, err := scoreAt(acq, fromUnit(u))
		if err != nil || math.IsNaN(s) {
			return math.Inf(1)
		}
		return -s
	}
	config.ProblemSize = d
	config.MaxIterations = m.iterations
	config.NPop = m.population
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, errNoCandidate("mayfly_maximizer", err)
	}
	if math.IsInf(result.GlobalBest.Cost, 1) {
		return nil, errNoCandidate("mayfly_maximizer", nil)
	}
	return fromUnit(result.GlobalBest.Position), nil
}
