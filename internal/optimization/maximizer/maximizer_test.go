package maximizer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// peakAcq is an analytic acquisition surface with a single maximum at a
// known point, used to check that maximizers actually find it.
type peakAcq struct {
	target []float64
}

func (a *peakAcq) Update(m optimization.Model) error { return nil }

func (a *peakAcq) Evaluate(X *mat.Dense) ([]float64, error) {
	n, d := X.Dims()
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < d; j++ {
			diff := X.At(i, j) - a.target[j]
			sum += diff * diff
		}
		scores[i] = -sum
	}
	return scores, nil
}

// unboundAcq simulates an acquisition function evaluated before Update.
type unboundAcq struct{}

func (unboundAcq) Update(m optimization.Model) error { return nil }

func (unboundAcq) Evaluate(X *mat.Dense) ([]float64, error) {
	return nil, optimization.NewError(optimization.KindUnboundAcquisition,
		"acquisition function evaluated before any model update")
}

func domain1D(t *testing.T) optimization.Domain {
	t.Helper()
	dom, err := optimization.NewDomain([]float64{0}, []float64{10})
	require.NoError(t, err)
	return dom
}

func TestGridValidation(t *testing.T) {
	_, err := NewGrid(1)
	assert.Error(t, err)
	_, err = NewGrid(2)
	assert.NoError(t, err)
}

func TestGridFindsNearestGridPoint(t *testing.T) {
	dom := domain1D(t)
	g, err := NewGrid(101)
	require.NoError(t, err)

	x, err := g.Maximize(context.Background(), &peakAcq{target: []float64{3.3}}, dom)
	require.NoError(t, err)
	require.Len(t, x, 1)

	// Grid spacing is 0.1, so 3.3 is itself a grid point.
	assert.InDelta(t, 3.3, x[0], 1e-9)
	assert.True(t, dom.Contains(x))
}

func TestGridTwoDimensional(t *testing.T) {
	dom, err := optimization.NewDomain([]float64{0, 0}, []float64{4, 4})
	require.NoError(t, err)
	g, err := NewGrid(41)
	require.NoError(t, err)

	x, err := g.Maximize(context.Background(), &peakAcq{target: []float64{1, 2}}, dom)
	require.NoError(t, err)
	require.Len(t, x, 2)
	assert.InDelta(t, 1.0, x[0], 1e-9)
	assert.InDelta(t, 2.0, x[1], 1e-9)
}

func TestGridHonorsCancellation(t *testing.T) {
	dom, err := optimization.NewDomain([]float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	g, err := NewGrid(100)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Maximize(ctx, &peakAcq{target: []float64{0.5, 0.5, 0.5}}, dom)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridPropagatesUnboundError(t *testing.T) {
	g, err := NewGrid(11)
	require.NoError(t, err)

	_, err = g.Maximize(context.Background(), unboundAcq{}, domain1D(t))
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindUnboundAcquisition))
}

func TestRandomRestartValidation(t *testing.T) {
	_, err := NewRandomRestart(0, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, err = NewRandomRestart(3, nil)
	assert.Error(t, err)
}

func TestRandomRestartFindsPeak(t *testing.T) {
	dom := domain1D(t)
	r, err := NewRandomRestart(5, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	x, err := r.Maximize(context.Background(), &peakAcq{target: []float64{3.3}}, dom)
	require.NoError(t, err)
	require.Len(t, x, 1)
	assert.InDelta(t, 3.3, x[0], 0.05)
	assert.True(t, dom.Contains(x))
}

func TestRandomRestartDeterministicForSeed(t *testing.T) {
	dom := domain1D(t)
	run := func() []float64 {
		r, err := NewRandomRestart(3, rand.New(rand.NewSource(5)))
		require.NoError(t, err)
		x, err := r.Maximize(context.Background(), &peakAcq{target: []float64{7.2}}, dom)
		require.NoError(t, err)
		return x
	}
	assert.Equal(t, run(), run())
}

func TestRandomRestartPropagatesUnboundError(t *testing.T) {
	r, err := NewRandomRestart(2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = r.Maximize(context.Background(), unboundAcq{}, domain1D(t))
	assert.True(t, optimization.IsKind(err, optimization.KindUnboundAcquisition))
}

func TestCMAESFindsPeak(t *testing.T) {
	dom := domain1D(t)
	c, err := NewCMAES(9, 0, 0)
	require.NoError(t, err)

	x, err := c.Maximize(context.Background(), &peakAcq{target: []float64{3.3}}, dom)
	require.NoError(t, err)
	require.Len(t, x, 1)
	assert.InDelta(t, 3.3, x[0], 0.5)
	assert.True(t, dom.Contains(x))
}

func TestCMAESValidationAndErrors(t *testing.T) {
	_, err := NewCMAES(1, -1, 0)
	assert.Error(t, err)

	c, err := NewCMAES(1, 0, 0)
	require.NoError(t, err)
	_, err = c.Maximize(context.Background(), unboundAcq{}, domain1D(t))
	assert.True(t, optimization.IsKind(err, optimization.KindUnboundAcquisition))
}

func TestMayflyStaysInBounds(t *testing.T) {
	dom, err := optimization.NewDomain([]float64{-2, 1}, []float64{2, 5})
	require.NoError(t, err)

	m, err := NewMayfly(30, 10, 17)
	require.NoError(t, err)

	x, err := m.Maximize(context.Background(), &peakAcq{target: []float64{0.5, 3}}, dom)
	require.NoError(t, err)
	require.Len(t, x, 2)
	assert.True(t, dom.Contains(x), "mayfly candidate %v escaped the domain", x)
}

func TestMayflyValidationAndErrors(t *testing.T) {
	_, err := NewMayfly(0, 10, 1)
	assert.Error(t, err)
	_, err = NewMayfly(10, 1, 1)
	assert.Error(t, err)

	m, err := NewMayfly(5, 4, 1)
	require.NoError(t, err)
	_, err = m.Maximize(context.Background(), unboundAcq{}, domain1D(t))
	assert.True(t, optimization.IsKind(err, optimization.KindUnboundAcquisition))
}
