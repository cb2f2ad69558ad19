package optimization

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Domain is a d-dimensional axis-aligned box. Immutable once constructed.
type Domain struct {
	lower []float64
	upper []float64
}

// NewDomain validates the bounds and returns a Domain. lower and upper
// must have the same non-zero length and satisfy lower[i] <= upper[i].
func NewDomain(lower, upper []float64) (Domain, error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return Domain{}, NewErrorf(KindDomain,
			"bounds must be non-empty vectors of equal length, got %d and %d",
			len(lower), len(upper))
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return Domain{}, NewErrorf(KindDomain,
				"lower bound exceeds upper bound at dimension %d: %v > %v",
				i, lower[i], upper[i])
		}
	}
	return Domain{
		lower: append([]float64(nil), lower...),
		upper: append([]float64(nil), upper...),
	}, nil
}

// Dim returns the dimensionality of the domain.
func (d Domain) Dim() int { return len(d.lower) }

// Lower returns a copy of the lower bound vector.
func (d Domain) Lower() []float64 { return append([]float64(nil), d.lower...) }

// Upper returns a copy of the upper bound vector.
func (d Domain) Upper() []float64 { return append([]float64(nil), d.upper...) }

// Contains reports whether x lies inside the box (bounds inclusive).
func (d Domain) Contains(x []float64) bool {
	if len(x) != len(d.lower) {
		return false
	}
	for i, v := range x {
		if v < d.lower[i] || v > d.upper[i] {
			return false
		}
	}
	return true
}

// Clamp returns a copy of x with every coordinate projected into the box.
func (d Domain) Clamp(x []float64) []float64 {
	out := append([]float64(nil), x...)
	for i := range out {
		if out[i] < d.lower[i] {
			out[i] = d.lower[i]
		}
		if out[i] > d.upper[i] {
			out[i] = d.upper[i]
		}
	}
	return out
}

// Sample draws a point uniformly at random from the box.
func (d Domain) Sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(d.lower))
	for i := range x {
		x[i] = d.lower[i] + rng.Float64()*(d.upper[i]-d.lower[i])
	}
	return x
}

// ObjectiveFunc evaluates a batch of candidates. X is n x d; the result
// has length n. Stochastic objectives are tolerated; the model treats
// output noise as part of its regression.
type ObjectiveFunc func(X *mat.Dense) (*mat.VecDense, error)

// Task wraps a black-box objective function together with its domain.
// Immutable once constructed.
type Task struct {
	name      string
	domain    Domain
	objective ObjectiveFunc
}

// NewTask creates a task over the given domain.
func NewTask(name string, domain Domain, objective ObjectiveFunc) (*Task, error) {
	if objective == nil {
		return nil, NewError(KindEvaluation, "objective function must not be nil").
			WithComponent("task").WithOperation("new")
	}
	if domain.Dim() == 0 {
		return nil, NewError(KindDomain, "task domain must not be empty").
			WithComponent("task").WithOperation("new")
	}
	return &Task{name: name, domain: domain, objective: objective}, nil
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Domain returns the task's input domain.
func (t *Task) Domain() Domain { return t.domain }

// Dim returns the input dimensionality.
func (t *Task) Dim() int { return t.domain.Dim() }

// Evaluate runs the objective on every row of X. A row outside the domain
// bounds is a hard error of KindDomain; inputs are never clamped.
func (t *Task) Evaluate(X *mat.Dense) (*mat.VecDense, error) {
	const op = "evaluate"

	if X == nil {
		return nil, NewError(KindEvaluation, "input matrix must not be nil").
			WithComponent("task").WithOperation(op)
	}
	n, d := X.Dims()
	if d != t.domain.Dim() {
		return nil, NewErrorf(KindDomain, "input has %d columns, domain has %d dimensions",
			d, t.domain.Dim()).WithComponent("task").WithOperation(op)
	}
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		if !t.domain.Contains(row) {
			return nil, NewError(KindDomain, "candidate outside task bounds").
				WithComponent("task").WithOperation(op).WithInput(row)
		}
	}

	y, err := t.objective(X)
	if err != nil {
		return nil, WrapError(err, KindEvaluation, "objective function failed").
			WithComponent("task").WithOperation(op)
	}
	if y == nil || y.Len() != n {
		got := 0
		if y != nil {
			got = y.Len()
		}
		return nil, NewErrorf(KindEvaluation, "objective returned %d values for %d inputs", got, n).
			WithComponent("task").WithOperation(op)
	}
	return y, nil
}

// EvaluateOne evaluates a single candidate.
func (t *Task) EvaluateOne(x []float64) (float64, error) {
	X := mat.NewDense(1, len(x), append([]float64(nil), x...))
	y, err := t.Evaluate(X)
	if err != nil {
		return 0, err
	}
	return y.AtVec(0), nil
}
