package optimization

import "gonum.org/v1/gonum/mat"

// Observation is a single evaluated (input, output) pair.
type Observation struct {
	X []float64 `json:"x"`
	Y float64   `json:"y"`
}

// ObservationSet is the ordered, append-only history of evaluations made
// during a run. Entries are never mutated or reordered.
type ObservationSet struct {
	obs []Observation
}

// NewObservationSet creates an empty set with the given capacity hint.
func NewObservationSet(capacity int) *ObservationSet {
	if capacity < 0 {
		capacity = 0
	}
	return &ObservationSet{obs: make([]Observation, 0, capacity)}
}

// Append records a new observation. The input slice is copied.
func (s *ObservationSet) Append(x []float64, y float64) {
	s.obs = append(s.obs, Observation{
		X: append([]float64(nil), x...),
		Y: y,
	})
}

// Len returns the number of observations.
func (s *ObservationSet) Len() int { return len(s.obs) }

// At returns the i-th observation in evaluation order.
func (s *ObservationSet) At(i int) Observation { return s.obs[i] }

// All returns the observations in evaluation order. The returned slice
// must not be modified.
func (s *ObservationSet) All() []Observation { return s.obs }

// Matrices converts the set into the n x d input matrix and length-n
// output vector consumed by Model.Train. Returns nil matrices when empty.
func (s *ObservationSet) Matrices() (*mat.Dense, *mat.VecDense) {
	n := len(s.obs)
	if n == 0 {
		return nil, nil
	}
	d := len(s.obs[0].X)
	X := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for i, o := range s.obs {
		X.SetRow(i, o.X)
		y.SetVec(i, o.Y)
	}
	return X, y
}

// Inputs returns copies of all observed inputs in evaluation order.
func (s *ObservationSet) Inputs() [][]float64 {
	out := make([][]float64, len(s.obs))
	for i, o := range s.obs {
		out[i] = append([]float64(nil), o.X...)
	}
	return out
}

// Outputs returns the observed values in evaluation order.
func (s *ObservationSet) Outputs() []float64 {
	out := make([]float64, len(s.obs))
	for i, o := range s.obs {
		out[i] = o.Y
	}
	return out
}
