package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// ProbabilityOfImprovement scores candidates by the probability that they
// improve on the incumbent by at least xi. More conservative than expected
// improvement: it ignores the magnitude of the improvement.
type ProbabilityOfImprovement struct {
	policy optimization.IncumbentPolicy
	xi     float64
	goal   optimization.Goal

	model     optimization.Model
	incumbent optimization.Incumbent
	bound     bool
}

// NewProbabilityOfImprovement creates a PI acquisition function.
func NewProbabilityOfImprovement(policy optimization.IncumbentPolicy, xi float64, goal optimization.Goal) (*ProbabilityOfImprovement, error) {
	if policy == nil {
		return nil, optimization.NewError(optimization.KindUnknown, "incumbent policy must not be nil").
			WithComponent("probability_of_improvement").WithOperation("new")
	}
	if xi < 0 {
		return nil, optimization.NewErrorf(optimization.KindUnknown, "xi must be non-negative, got %v", xi).
			WithComponent("probability_of_improvement").WithOperation("new")
	}
	return &ProbabilityOfImprovement{policy: policy, xi: xi, goal: goal}, nil
}

// Update rebinds the criterion to a freshly trained model and recomputes
// the incumbent.
func (pi *ProbabilityOfImprovement) Update(m optimization.Model) error {
	inc, err := pi.policy(m)
	if err != nil {
		return optimization.WrapError(err, optimization.KindUnknown, "incumbent selection failed").
			WithComponent("probability_of_improvement").WithOperation("update")
	}
	pi.model = m
	pi.incumbent = inc
	pi.bound = true
	return nil
}

// Evaluate returns the improvement probability at each row of X.
func (pi *ProbabilityOfImprovement) Evaluate(X *mat.Dense) ([]float64, error) {
	if !pi.bound {
		return nil, errUnbound("probability_of_improvement")
	}
	mean, variance, err := predict(pi.model, X, "probability_of_improvement")
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(mean))
	for i := range mean {
		var improvement float64
		if pi.goal == optimization.Maximize {
			improvement = mean[i] - pi.incumbent.Value - pi.xi
		} else {
			improvement = pi.incumbent.Value - mean[i] - pi.xi
		}

		sigma := math.Sqrt(variance[i])
		if sigma <= 1e-10 {
			if improvement > 0 {
				scores[i] = 1
			}
			continue
		}
		scores[i] = distuv.UnitNormal.CDF(improvement / sigma)
	}
	return scores, nil
}
