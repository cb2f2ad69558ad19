package maximizer

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// RandomRestart runs a derivative-free Nelder-Mead search from several
// random starting points and keeps the best local optimum. Deterministic
// for a fixed seed; ties between restarts keep the earlier restart's
// result.
type RandomRestart struct {
	restarts int
	rng      *rand.Rand
}

// NewRandomRestart creates a restarted local-search maximizer. restarts
// must be positive; the rng drives the start points and must not be shared
// with other components.
func NewRandomRestart(restarts int, rng *rand.Rand) (*RandomRestart, error) {
	if restarts < 1 {
		return nil, optimization.NewErrorf(optimization.KindMaximization,
			"restarts must be positive, got %d", restarts).
			WithComponent("random_restart_maximizer").WithOperation("new")
	}
	if rng == nil {
		return nil, optimization.NewError(optimization.KindMaximization, "random source must not be nil").
			WithComponent("random_restart_maximizer").WithOperation("new")
	}
	return &RandomRestart{restarts: restarts, rng: rng}, nil
}

// Maximize runs the restarted search and returns the best point found,
// clamped into the domain.
func (r *RandomRestart) Maximize(ctx context.Context, acq optimization.AcquisitionFunction, dom optimization.Domain) ([]float64, error) {
	problem := optimize.Problem{Func: negScore(acq, dom)}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 100,
		},
		MajorIterations: 250,
	}

	bestVal := math.Inf(1)
	var best []float64
	var lastErr error

	for i := 0; i < r.restarts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := dom.Sample(r.rng)

		// Sanity-check the acquisition once per restart so contract errors
		// (unbound acquisition) propagate instead of hiding behind +Inf.
		if _, err := scoreAt(acq, start); err != nil {
			return nil, err
		}

		result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
		if err != nil || result == nil {
			lastErr = err
			continue
		}
		if result.F < bestVal {
			bestVal = result.F
			best = dom.Clamp(result.X)
		}
	}

	if best == nil || math.IsInf(bestVal, 1) {
		return nil, errNoCandidate("random_restart_maximizer", lastErr)
	}
	return best, nil
}
