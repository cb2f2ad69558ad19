// Package optimization defines the contracts and the control loop for
// surrogate-model driven black-box optimization. A Task wraps the objective
// function and its domain, a Model regresses observed values, an
// AcquisitionFunction scores candidates under the model, and a Maximizer
// searches the domain for the best-scoring candidate. The Loop drives the
// train-update-maximize-evaluate cycle.
package optimization

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Goal states whether lower or higher objective values are better.
type Goal int

const (
	// Minimize treats lower objective values as better.
	Minimize Goal = iota
	// Maximize treats higher objective values as better.
	Maximize
)

// String returns the name of the goal.
func (g Goal) String() string {
	if g == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Better reports whether a is a strictly better objective value than b
// under the goal.
func (g Goal) Better(a, b float64) bool {
	if g == Maximize {
		return a > b
	}
	return a < b
}

// Model is a regression method standing in for the expensive objective
// function. Train consumes the full observation set and replaces any
// previous fit wholesale; Predict is undefined before the first Train.
type Model interface {
	// Train fits the model to the observations. X is n x d, y has length n.
	Train(X *mat.Dense, y *mat.VecDense) error

	// Predict returns the predictive mean and variance at each row of X
	// under the current fit.
	Predict(X *mat.Dense) (mean, variance *mat.VecDense, err error)

	// TrainingData returns the matrices of the current fit, or nil before
	// the first Train. Incumbent policies use these to inspect the model.
	TrainingData() (*mat.Dense, *mat.VecDense)
}

// AcquisitionFunction scores candidate inputs by the utility of evaluating
// them next. Update must be called after every model re-fit; Evaluate
// before the first Update returns an error of KindUnboundAcquisition.
// Scores are higher-is-better.
type AcquisitionFunction interface {
	Update(m Model) error
	Evaluate(X *mat.Dense) ([]float64, error)
}

// Maximizer searches the domain for the input maximizing the acquisition
// score. The returned point is always inside the domain bounds.
type Maximizer interface {
	Maximize(ctx context.Context, acq AcquisitionFunction, dom Domain) ([]float64, error)
}

// Incumbent is the best-believed configuration and its value under an
// incumbent policy.
type Incumbent struct {
	X     []float64 `json:"x"`
	Value float64   `json:"value"`
}

// IncumbentPolicy selects the incumbent from a trained model. Policies may
// use the model's posterior mean to denoise noisy observations rather than
// trusting raw values.
type IncumbentPolicy func(m Model) (Incumbent, error)

// BestObserved returns a policy that picks the training observation with
// the best raw value under the goal.
func BestObserved(goal Goal) IncumbentPolicy {
	return func(m Model) (Incumbent, error) {
		X, y := m.TrainingData()
		if X == nil || y == nil || y.Len() == 0 {
			return Incumbent{}, NewError(KindUnknown, "model has no training data")
		}
		best := 0
		for i := 1; i < y.Len(); i++ {
			if goal.Better(y.AtVec(i), y.AtVec(best)) {
				best = i
			}
		}
		return Incumbent{
			X:     mat.Row(nil, best, X),
			Value: y.AtVec(best),
		}, nil
	}
}

// PosteriorMean returns a policy that re-scores the training inputs under
// the model's posterior mean and picks the best, denoising the raw
// observations.
func PosteriorMean(goal Goal) IncumbentPolicy {
	return func(m Model) (Incumbent, error) {
		X, y := m.TrainingData()
		if X == nil || y == nil || y.Len() == 0 {
			return Incumbent{}, NewError(KindUnknown, "model has no training data")
		}
		mean, _, err := m.Predict(X)
		if err != nil {
			return Incumbent{}, WrapError(err, KindUnknown, "predicting posterior mean at training inputs")
		}
		best := 0
		for i := 1; i < mean.Len(); i++ {
			if goal.Better(mean.AtVec(i), mean.AtVec(best)) {
				best = i
			}
		}
		return Incumbent{
			X:     mat.Row(nil, best, X),
			Value: mean.AtVec(best),
		}, nil
	}
}

// TraceRecord is the per-iteration snapshot handed to a TraceRecorder. It
// is write-only from the loop's perspective.
type TraceRecord struct {
	// Iteration is the 1-based loop iteration that produced the record.
	Iteration int `json:"iteration"`
	// X and Y hold every observation made so far, in evaluation order.
	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
	// Incumbent is the best-believed configuration at this iteration.
	Incumbent Incumbent `json:"incumbent"`
	// TimeFunction is the wall time of the objective evaluation.
	TimeFunction time.Duration `json:"time_function"`
	// OptimizerOverhead is the wall time of model fitting, acquisition
	// update and maximization for this iteration.
	OptimizerOverhead time.Duration `json:"optimizer_overhead"`
}

// TraceRecorder persists trace records. Implementations own the storage
// format; the loop only emits records.
type TraceRecorder interface {
	Record(rec TraceRecord) error
}

// IterationObserver receives a callback after every completed iteration.
// Used for metrics; unlike TraceRecorder it is not subject to the save
// cadence.
type IterationObserver interface {
	ObserveIteration(iteration int, inc Incumbent, evalTime, overhead time.Duration)
}
