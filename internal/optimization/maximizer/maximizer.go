// Package maximizer provides search strategies over the task domain for
// the point maximizing an acquisition function's score. Every strategy
// returns a point strictly inside the domain bounds; ties are broken
// first-found in the strategy's own iteration order, which is reproducible
// for a fixed random seed.
package maximizer

import (
	"math"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// scoreAt evaluates the acquisition function at a single point.
func scoreAt(acq optimization.AcquisitionFunction, x []float64) (float64, error) {
	scores, err := acq.Evaluate(optimization.SingleRow(x))
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// negScore adapts the higher-is-better acquisition contract to gonum's
// minimizers. Evaluation errors surface as +Inf so the search routes
// around them.
func negScore(acq optimization.AcquisitionFunction, dom optimization.Domain) func(x []float64) float64 {
	return func(x []float64) float64 {
		s, err := scoreAt(acq, dom.Clamp(x))
		if err != nil || math.IsNaN(s) {
			return math.Inf(1)
		}
		return -s
	}
}

func errNoCandidate(component string, err error) error {
	wrapped := optimization.NewError(optimization.KindMaximization,
		"search produced no finite-scored candidate").
		WithComponent(component).WithOperation("maximize")
	wrapped.Err = err
	return wrapped
}
