package optimization_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/optimization"
	"github.com/copyleftdev/TALUS/internal/optimization/acquisition"
	"github.com/copyleftdev/TALUS/internal/optimization/gp"
	"github.com/copyleftdev/TALUS/internal/optimization/kernels"
	"github.com/copyleftdev/TALUS/internal/optimization/maximizer"
)

// sinPoly is sin(3x) * 4(x-1)(x+2), a standard one dimensional test
// function with several local minima on [0, 6].
func sinPoly(X *mat.Dense) (*mat.VecDense, error) {
	n, _ := X.Dims()
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x := X.At(i, 0)
		y.SetVec(i, math.Sin(3*x)*4*(x-1)*(x+2))
	}
	return y, nil
}

func TestLoopMinimizesSinPolyWithGPAndEI(t *testing.T) {
	dom, err := optimization.NewDomain([]float64{0}, []float64{6})
	require.NoError(t, err)
	task, err := optimization.NewTask("sinpoly", dom, sinPoly)
	require.NoError(t, err)

	model := gp.New(kernels.NewMatern52(1.0, 1.0), 1e-6)
	acq, err := acquisition.NewExpectedImprovement(
		optimization.BestObserved(optimization.Minimize), 0.01, optimization.Minimize)
	require.NoError(t, err)
	max, err := maximizer.NewGrid(201)
	require.NoError(t, err)

	loop, err := optimization.NewLoop(task, model, acq, max, optimization.LoopConfig{
		NumIterations: 10,
		RandomSeed:    42,
		Goal:          optimization.Minimize,
	})
	require.NoError(t, err)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 11, result.Observations.Len())
	assert.Equal(t, optimization.Terminated, loop.State())

	// Every evaluated point stayed inside the domain.
	for _, o := range result.Observations.All() {
		assert.True(t, dom.Contains(o.X), "observation %v escaped the domain", o.X)
	}

	// The incumbent matches the best raw observation and improved on the
	// seed point.
	best := math.Inf(1)
	for _, o := range result.Observations.All() {
		if o.Y < best {
			best = o.Y
		}
	}
	assert.Equal(t, best, result.Incumbent.Value)
	assert.LessOrEqual(t, result.Incumbent.Value, result.Observations.At(0).Y)
	require.Len(t, result.Incumbent.X, 1)
	assert.True(t, dom.Contains(result.Incumbent.X))
}

func TestLoopReproducibleForFixedSeed(t *testing.T) {
	run := func() *optimization.Result {
		dom, err := optimization.NewDomain([]float64{0}, []float64{6})
		require.NoError(t, err)
		task, err := optimization.NewTask("sinpoly", dom, sinPoly)
		require.NoError(t, err)

		model := gp.New(kernels.NewMatern52(1.0, 1.0), 1e-6)
		acq, err := acquisition.NewExpectedImprovement(
			optimization.BestObserved(optimization.Minimize), 0.01, optimization.Minimize)
		require.NoError(t, err)
		max, err := maximizer.NewGrid(101)
		require.NoError(t, err)

		loop, err := optimization.NewLoop(task, model, acq, max, optimization.LoopConfig{
			NumIterations: 5,
			RandomSeed:    7,
			Goal:          optimization.Minimize,
		})
		require.NoError(t, err)

		result, err := loop.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Equal(t, a.Observations.Len(), b.Observations.Len())
	for i := 0; i < a.Observations.Len(); i++ {
		assert.Equal(t, a.Observations.At(i).X, b.Observations.At(i).X)
		assert.Equal(t, a.Observations.At(i).Y, b.Observations.At(i).Y)
	}
	assert.Equal(t, a.Incumbent, b.Incumbent)
}
