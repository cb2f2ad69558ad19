package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// ConfidenceBound is the UCB/LCB criterion: optimistic-in-the-face-of-
// uncertainty scoring with an explicit exploration weight. Needs no
// incumbent, but still requires Update so scores never come from a stale
// model.
type ConfidenceBound struct {
	beta float64
	goal optimization.Goal

	model optimization.Model
	bound bool
}

// NewConfidenceBound creates a confidence-bound acquisition function. beta
// must be non-negative; higher values explore more.
func NewConfidenceBound(beta float64, goal optimization.Goal) (*ConfidenceBound, error) {
	if beta < 0 {
		return nil, optimization.NewErrorf(optimization.KindUnknown, "beta must be non-negative, got %v", beta).
			WithComponent("confidence_bound").WithOperation("new")
	}
	return &ConfidenceBound{beta: beta, goal: goal}, nil
}

// Update rebinds the criterion to a freshly trained model.
func (cb *ConfidenceBound) Update(m optimization.Model) error {
	if m == nil {
		return optimization.NewError(optimization.KindUnknown, "model must not be nil").
			WithComponent("confidence_bound").WithOperation("update")
	}
	cb.model = m
	cb.bound = true
	return nil
}

// Evaluate returns the confidence-bound score at each row of X. For
// minimization the score is beta*sigma - mu (an inverted lower bound), for
// maximization mu + beta*sigma; either way higher is better.
func (cb *ConfidenceBound) Evaluate(X *mat.Dense) ([]float64, error) {
	if !cb.bound {
		return nil, errUnbound("confidence_bound")
	}
	mean, variance, err := predict(cb.model, X, "confidence_bound")
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(mean))
	for i := range mean {
		sigma := math.Sqrt(variance[i])
		if cb.goal == optimization.Maximize {
			scores[i] = mean[i] + cb.beta*sigma
		} else {
			scores[i] = cb.beta*sigma - mean[i]
		}
	}
	return scores, nil
}
