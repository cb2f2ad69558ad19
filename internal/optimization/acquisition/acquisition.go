// Package acquisition provides acquisition functions scoring candidate
// inputs under a trained surrogate model. All scores are higher-is-better;
// every function must be rebound with Update after each model re-fit.
package acquisition

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// errUnbound builds the error returned when Evaluate runs before Update.
func errUnbound(component string) error {
	return optimization.NewError(optimization.KindUnboundAcquisition,
		"acquisition function evaluated before any model update").
		WithComponent(component).WithOperation("evaluate")
}

// predict runs the bound model over the candidates and unpacks the
// predictive distribution into plain slices.
func predict(m optimization.Model, X *mat.Dense, component string) (mean, variance []float64, err error) {
	mu, v, err := m.Predict(X)
	if err != nil {
		return nil, nil, optimization.WrapError(err, optimization.KindUnknown, "model prediction failed").
			WithComponent(component).WithOperation("evaluate")
	}
	n := mu.Len()
	mean = make([]float64, n)
	variance = make([]float64, n)
	for i := 0; i < n; i++ {
		mean[i] = mu.AtVec(i)
		variance[i] = v.AtVec(i)
	}
	return mean, variance, nil
}
