package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// ExpectedImprovement scores candidates by the expected magnitude of their
// improvement over the incumbent. The xi parameter raises the required
// improvement margin; larger values bias toward exploration.
type ExpectedImprovement struct {
	policy optimization.IncumbentPolicy
	xi     float64
	goal   optimization.Goal

	model     optimization.Model
	incumbent optimization.Incumbent
	bound     bool
}

// NewExpectedImprovement creates an EI acquisition function. The incumbent
// policy is stored immutably at construction; xi must be non-negative.
func NewExpectedImprovement(policy optimization.IncumbentPolicy, xi float64, goal optimization.Goal) (*ExpectedImprovement, error) {
	if policy == nil {
		return nil, optimization.NewError(optimization.KindUnknown, "incumbent policy must not be nil").
			WithComponent("expected_improvement").WithOperation("new")
	}
	if xi < 0 {
		return nil, optimization.NewErrorf(optimization.KindUnknown, "xi must be non-negative, got %v", xi).
			WithComponent("expected_improvement").WithOperation("new")
	}
	return &ExpectedImprovement{policy: policy, xi: xi, goal: goal}, nil
}

// Update rebinds the criterion to a freshly trained model and recomputes
// the incumbent under the stored policy.
func (ei *ExpectedImprovement) Update(m optimization.Model) error {
	inc, err := ei.policy(m)
	if err != nil {
		return optimization.WrapError(err, optimization.KindUnknown, "incumbent selection failed").
			WithComponent("expected_improvement").WithOperation("update")
	}
	ei.model = m
	ei.incumbent = inc
	ei.bound = true
	return nil
}

// Incumbent returns the incumbent from the last Update.
func (ei *ExpectedImprovement) Incumbent() optimization.Incumbent { return ei.incumbent }

// Evaluate returns the expected improvement at each row of X.
func (ei *ExpectedImprovement) Evaluate(X *mat.Dense) ([]float64, error) {
	if !ei.bound {
		return nil, errUnbound("expected_improvement")
	}
	mean, variance, err := predict(ei.model, X, "expected_improvement")
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(mean))
	for i := range mean {
		scores[i] = ei.compute(mean[i], math.Sqrt(variance[i]))
	}
	return scores, nil
}

// compute evaluates the closed-form EI for a single predictive (mu, sigma).
func (ei *ExpectedImprovement) compute(mu, sigma float64) float64 {
	var improvement float64
	if ei.goal == optimization.Maximize {
		improvement = mu - ei.incumbent.Value - ei.xi
	} else {
		improvement = ei.incumbent.Value - mu - ei.xi
	}

	if sigma <= 1e-10 {
		// Certain prediction: the improvement itself, floored at zero.
		return math.Max(0, improvement)
	}

	z := improvement / sigma
	n := distuv.UnitNormal
	return improvement*n.CDF(z) + sigma*n.Prob(z)
}
