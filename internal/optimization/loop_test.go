package optimization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stubModel records the data it was trained on and serves it back through
// TrainingData. Predictions are the stored outputs with unit variance.
type stubModel struct {
	X        *mat.Dense
	y        *mat.VecDense
	trainErr error
	trains   int
}

func (m *stubModel) Train(X *mat.Dense, y *mat.VecDense) error {
	if m.trainErr != nil {
		return m.trainErr
	}
	m.X = mat.DenseCopyOf(X)
	m.y = mat.VecDenseCopyOf(y)
	m.trains++
	return nil
}

func (m *stubModel) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	n, _ := X.Dims()
	mean := mat.NewVecDense(n, nil)
	variance := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		variance.SetVec(i, 1)
	}
	return mean, variance, nil
}

func (m *stubModel) TrainingData() (*mat.Dense, *mat.VecDense) { return m.X, m.y }

// stubAcq scores everything zero once bound.
type stubAcq struct {
	updates   int
	updateErr error
}

func (a *stubAcq) Update(m Model) error {
	if a.updateErr != nil {
		return a.updateErr
	}
	a.updates++
	return nil
}

func (a *stubAcq) Evaluate(X *mat.Dense) ([]float64, error) {
	n, _ := X.Dims()
	return make([]float64, n), nil
}

// stubMax proposes candidates from a fixed list, wrapping around.
type stubMax struct {
	candidates [][]float64
	calls      int
	err        error
}

func (s *stubMax) Maximize(ctx context.Context, acq AcquisitionFunction, dom Domain) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := s.candidates[s.calls%len(s.candidates)]
	s.calls++
	return append([]float64(nil), c...), nil
}

// observerFunc adapts a function to IterationObserver.
type observerFunc func(iteration int, inc Incumbent, evalTime, overhead time.Duration)

func (f observerFunc) ObserveIteration(i int, inc Incumbent, evalTime, overhead time.Duration) {
	f(i, inc, evalTime, overhead)
}

// recorderFunc adapts a function to TraceRecorder.
type recorderFunc func(rec TraceRecord) error

func (f recorderFunc) Record(rec TraceRecord) error { return f(rec) }

func newTestTask(t *testing.T) *Task {
	t.Helper()
	dom, err := NewDomain([]float64{0}, []float64{10})
	require.NoError(t, err)
	task, err := NewTask("square", dom, func(X *mat.Dense) (*mat.VecDense, error) {
		n, _ := X.Dims()
		y := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			v := X.At(i, 0)
			y.SetVec(i, v*v)
		}
		return y, nil
	})
	require.NoError(t, err)
	return task
}

func TestNewLoopValidation(t *testing.T) {
	task := newTestTask(t)
	model := &stubModel{}
	acq := &stubAcq{}
	max := &stubMax{candidates: [][]float64{{1}}}

	_, err := NewLoop(nil, model, acq, max, LoopConfig{NumIterations: 1})
	assert.Error(t, err)

	_, err = NewLoop(task, nil, acq, max, LoopConfig{NumIterations: 1})
	assert.Error(t, err)

	_, err = NewLoop(task, model, acq, max, LoopConfig{NumIterations: 0})
	assert.Error(t, err)

	_, err = NewLoop(task, model, acq, max, LoopConfig{NumIterations: 1, NumSave: -1})
	assert.Error(t, err)

	loop, err := NewLoop(task, model, acq, max, LoopConfig{NumIterations: 1})
	require.NoError(t, err)
	assert.Equal(t, Initialized, loop.State())
}

func TestLoopRunCompletes(t *testing.T) {
	task := newTestTask(t)
	model := &stubModel{}
	max := &stubMax{candidates: [][]float64{{4}, {3}, {2}, {1}, {5}}}

	loop, err := NewLoop(task, model, &stubAcq{}, max, LoopConfig{
		NumIterations: 5,
		RandomSeed:    1,
	})
	require.NoError(t, err)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	// One seed evaluation plus one per iteration.
	assert.Equal(t, 6, result.Observations.Len())
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, Terminated, loop.State())
	assert.Equal(t, 5, model.trains)

	// The best candidate tried is x=1 with value 1, unless the random seed
	// point happened to be better.
	best := result.Observations.At(0).Y
	for i := 1; i < result.Observations.Len(); i++ {
		if y := result.Observations.At(i).Y; y < best {
			best = y
		}
	}
	assert.Equal(t, best, result.Incumbent.Value)
}

func TestLoopTraceCadence(t *testing.T) {
	task := newTestTask(t)
	max := &stubMax{candidates: [][]float64{{4}}}

	var records []TraceRecord
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{
		NumIterations: 5,
		NumSave:       2,
		Recorder: recorderFunc(func(rec TraceRecord) error {
			records = append(records, rec)
			return nil
		}),
	})
	require.NoError(t, err)

	_, err = loop.Run(context.Background())
	require.NoError(t, err)

	// floor(5/2) records, at iterations 2 and 4.
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Iteration)
	assert.Equal(t, 4, records[1].Iteration)

	// Each record snapshots the full history up to its iteration.
	assert.Len(t, records[0].X, 3)
	assert.Len(t, records[1].Y, 5)
	assert.NotNil(t, records[1].Incumbent.X)
}

func TestLoopTraceDisabledWhenNumSaveZero(t *testing.T) {
	task := newTestTask(t)
	max := &stubMax{candidates: [][]float64{{4}}}

	calls := 0
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{
		NumIterations: 3,
		NumSave:       0,
		Recorder: recorderFunc(func(rec TraceRecord) error {
			calls++
			return nil
		}),
	})
	require.NoError(t, err)

	_, err = loop.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestLoopCancellationBetweenIterations(t *testing.T) {
	task := newTestTask(t)
	max := &stubMax{candidates: [][]float64{{4}}}

	ctx, cancel := context.WithCancel(context.Background())
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{
		NumIterations: 100,
		Observer: observerFunc(func(i int, inc Incumbent, evalTime, overhead time.Duration) {
			if i == 2 {
				cancel()
			}
		}),
	})
	require.NoError(t, err)

	result, err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	// Both completed iterations kept their observations.
	assert.Equal(t, 3, result.Observations.Len())
	assert.Equal(t, Terminated, loop.State())
	assert.NotNil(t, result.Incumbent.X)
}

func TestLoopRejectsOutOfBoundsCandidate(t *testing.T) {
	task := newTestTask(t)
	max := &stubMax{candidates: [][]float64{{42}}}

	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{NumIterations: 5})
	require.NoError(t, err)

	result, err := loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDomain))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 0, e.Iteration)
	assert.Equal(t, []float64{42}, e.Input)

	// The seed observation survives the failure.
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Observations.Len())
}

func TestLoopEvaluationFailureIsFatal(t *testing.T) {
	dom, err := NewDomain([]float64{0}, []float64{10})
	require.NoError(t, err)

	calls := 0
	task, err := NewTask("flaky", dom, func(X *mat.Dense) (*mat.VecDense, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("instrument offline")
		}
		n, _ := X.Dims()
		return mat.NewVecDense(n, nil), nil
	})
	require.NoError(t, err)

	max := &stubMax{candidates: [][]float64{{4}}}
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{NumIterations: 5})
	require.NoError(t, err)

	result, err := loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindEvaluation))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 0, e.Iteration)
	assert.Equal(t, []float64{4}, e.Input)

	require.NotNil(t, result)
	assert.Equal(t, 1, result.Observations.Len())
}

func TestLoopPropagatesComponentErrors(t *testing.T) {
	task := newTestTask(t)

	t.Run("train failure", func(t *testing.T) {
		model := &stubModel{trainErr: NewError(KindFit, "singular kernel matrix")}
		loop, err := NewLoop(task, model, &stubAcq{}, &stubMax{candidates: [][]float64{{4}}},
			LoopConfig{NumIterations: 2})
		require.NoError(t, err)

		_, err = loop.Run(context.Background())
		assert.True(t, IsKind(err, KindFit))
	})

	t.Run("update failure", func(t *testing.T) {
		acq := &stubAcq{updateErr: NewError(KindUnboundAcquisition, "no model bound")}
		loop, err := NewLoop(task, &stubModel{}, acq, &stubMax{candidates: [][]float64{{4}}},
			LoopConfig{NumIterations: 2})
		require.NoError(t, err)

		_, err = loop.Run(context.Background())
		assert.True(t, IsKind(err, KindUnboundAcquisition))
	})

	t.Run("maximizer failure", func(t *testing.T) {
		max := &stubMax{err: NewError(KindMaximization, "no candidate found")}
		loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{NumIterations: 2})
		require.NoError(t, err)

		_, err = loop.Run(context.Background())
		assert.True(t, IsKind(err, KindMaximization))
	})
}

func TestLoopIterationTimeout(t *testing.T) {
	dom, err := NewDomain([]float64{0}, []float64{10})
	require.NoError(t, err)
	task, err := NewTask("slow", dom, func(X *mat.Dense) (*mat.VecDense, error) {
		time.Sleep(5 * time.Millisecond)
		n, _ := X.Dims()
		return mat.NewVecDense(n, nil), nil
	})
	require.NoError(t, err)

	max := &stubMax{candidates: [][]float64{{4}}}
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{
		NumIterations:    10,
		IterationTimeout: time.Nanosecond,
	})
	require.NoError(t, err)

	result, err := loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIterationTimeout))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 0, e.Iteration)

	// The offending iteration's observation was appended before the abort.
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Observations.Len())
}

func TestLoopObserverSeesEveryIteration(t *testing.T) {
	task := newTestTask(t)
	max := &stubMax{candidates: [][]float64{{4}}}

	var seen []int
	loop, err := NewLoop(task, &stubModel{}, &stubAcq{}, max, LoopConfig{
		NumIterations: 4,
		Observer: observerFunc(func(i int, inc Incumbent, evalTime, overhead time.Duration) {
			seen = append(seen, i)
			assert.NotNil(t, inc.X)
		}),
	})
	require.NoError(t, err)

	_, err = loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestBestObservedPolicy(t *testing.T) {
	m := &stubModel{}
	require.NoError(t, m.Train(
		mat.NewDense(3, 1, []float64{1, 2, 3}),
		mat.NewVecDense(3, []float64{5, -2, 7}),
	))

	inc, err := BestObserved(Minimize)(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, inc.X)
	assert.Equal(t, -2.0, inc.Value)

	inc, err = BestObserved(Maximize)(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, inc.X)
	assert.Equal(t, 7.0, inc.Value)
}

func TestBestObservedPolicyUntrainedModel(t *testing.T) {
	_, err := BestObserved(Minimize)(&stubModel{})
	assert.Error(t, err)
}

func TestGoalBetter(t *testing.T) {
	assert.True(t, Minimize.Better(1, 2))
	assert.False(t, Minimize.Better(2, 1))
	assert.False(t, Minimize.Better(1, 1))
	assert.True(t, Maximize.Better(2, 1))
	assert.Equal(t, "minimize", Minimize.String())
	assert.Equal(t, "maximize", Maximize.String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "initialized", Initialized.String())
	assert.Equal(t, "seeding", Seeding.String())
	assert.Equal(t, "iterating", Iterating.String())
	assert.Equal(t, "terminated", Terminated.String())
}
