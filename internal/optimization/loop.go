package optimization

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/logging"
)

// State is the lifecycle phase of a Loop.
type State int32

const (
	// Initialized means the components are wired but nothing has run.
	Initialized State = iota
	// Seeding means the single random seed point is being evaluated.
	Seeding
	// Iterating means the main cycle is running.
	Iterating
	// Terminated means the loop finished, successfully or not.
	Terminated
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Seeding:
		return "seeding"
	case Iterating:
		return "iterating"
	case Terminated:
		return "terminated"
	default:
		return "initialized"
	}
}

// ErrIterationTimeout is returned by Run when an iteration exceeds the
// configured timeout. The loop aborts at the next safe boundary, after the
// observation is appended, so the returned result is consistent.
var ErrIterationTimeout = errors.New("iteration exceeded configured timeout")

// LoopConfig configures a Loop run.
type LoopConfig struct {
	// NumIterations is the number of main-loop iterations. Required,
	// positive. The seed evaluation is not counted.
	NumIterations int

	// NumSave is the trace cadence: a record is emitted every NumSave
	// iterations. Zero disables tracing even when a Recorder is set.
	NumSave int

	// IterationTimeout aborts the run when a single iteration takes
	// longer. Zero disables the check.
	IterationTimeout time.Duration

	// RandomSeed seeds the loop's random source. Runs with the same seed
	// and deterministic components are reproducible.
	RandomSeed int64

	// Goal states whether the objective is minimized or maximized.
	// Defaults to Minimize.
	Goal Goal

	// Incumbent selects the best-believed configuration after each
	// iteration. Defaults to BestObserved(Goal).
	Incumbent IncumbentPolicy

	// Recorder receives trace records at the NumSave cadence. Optional.
	Recorder TraceRecorder

	// Observer receives a callback after every iteration. Optional.
	Observer IterationObserver

	// Logger receives run progress. Optional.
	Logger *logging.Logger
}

// Result is the outcome of a run: the full observation history and the
// final incumbent. On a fatal error the observations appended before the
// failure are still present.
type Result struct {
	Observations *ObservationSet
	Incumbent    Incumbent
	Iterations   int
}

// Loop drives the iterate-fit-score-select-evaluate cycle. It is strictly
// single-threaded: every step blocks, and iteration i+1 starts only after
// iteration i's observation is appended. The loop owns the observation set
// and the model for its lifetime.
type Loop struct {
	task  *Task
	model Model
	acq   AcquisitionFunction
	max   Maximizer

	cfg    LoopConfig
	rng    *rand.Rand
	logger *logging.Logger

	obs   *ObservationSet
	state atomic.Int32
}

// NewLoop wires the four components together.
func NewLoop(task *Task, model Model, acq AcquisitionFunction, max Maximizer, cfg LoopConfig) (*Loop, error) {
	if task == nil || model == nil || acq == nil || max == nil {
		return nil, NewError(KindUnknown, "task, model, acquisition function and maximizer are all required").
			WithComponent("loop").WithOperation("new")
	}
	if cfg.NumIterations < 1 {
		return nil, NewErrorf(KindUnknown, "num_iterations must be positive, got %d", cfg.NumIterations).
			WithComponent("loop").WithOperation("new")
	}
	if cfg.NumSave < 0 {
		return nil, NewErrorf(KindUnknown, "num_save must not be negative, got %d", cfg.NumSave).
			WithComponent("loop").WithOperation("new")
	}
	if cfg.Incumbent == nil {
		cfg.Incumbent = BestObserved(cfg.Goal)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loop{
		task:   task,
		model:  model,
		acq:    acq,
		max:    max,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.RandomSeed)),
		logger: logger.WithField("task", task.Name()),
		obs:    NewObservationSet(cfg.NumIterations + 1),
	}, nil
}

// State returns the current lifecycle phase. Safe to call concurrently
// with Run.
func (l *Loop) State() State { return State(l.state.Load()) }

// Observations returns the observation set. Callers must not read it
// concurrently with Run.
func (l *Loop) Observations() *ObservationSet { return l.obs }

// Run executes the loop: one uniform random seed evaluation, then
// NumIterations cycles of train, update, maximize, evaluate, append.
// Cancellation is honored between iterations only, never mid-iteration,
// so the model is never left in a partially updated state. Run returns a
// non-nil Result even on error.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	defer l.state.Store(int32(Terminated))

	// Seeding: the model cannot fit on zero data.
	l.state.Store(int32(Seeding))
	seed := l.task.Domain().Sample(l.rng)
	seedY, err := l.task.EvaluateOne(seed)
	if err != nil {
		return l.result(Incumbent{}), l.annotate(err, -1, seed)
	}
	l.obs.Append(seed, seedY)
	l.logger.Debug("seed point evaluated", map[string]interface{}{
		"x": seed, "y": seedY,
	})

	l.state.Store(int32(Iterating))
	var inc Incumbent
	for i := 0; i < l.cfg.NumIterations; i++ {
		select {
		case <-ctx.Done():
			return l.result(inc), ctx.Err()
		default:
		}

		iterStart := time.Now()

		// Steps 1-3 are optimizer overhead: fit, rebind, search.
		X, y := l.obs.Matrices()
		if err := l.model.Train(X, y); err != nil {
			return l.result(inc), l.annotate(err, i, nil)
		}
		if err := l.acq.Update(l.model); err != nil {
			return l.result(inc), l.annotate(err, i, nil)
		}
		candidate, err := l.max.Maximize(ctx, l.acq, l.task.Domain())
		if err != nil {
			return l.result(inc), l.annotate(err, i, nil)
		}
		if !l.task.Domain().Contains(candidate) {
			// Maximizer bug: reject rather than clamp.
			err := NewError(KindDomain, "maximizer returned candidate outside task bounds").
				WithComponent("loop").WithOperation("run").
				WithIteration(i).WithInput(candidate)
			return l.result(inc), err
		}
		overhead := time.Since(iterStart)

		evalStart := time.Now()
		yNew, err := l.task.EvaluateOne(candidate)
		evalTime := time.Since(evalStart)
		if err != nil {
			return l.result(inc), l.annotate(err, i, candidate)
		}

		l.obs.Append(candidate, yNew)

		if cur, err := l.cfg.Incumbent(l.model); err == nil {
			inc = cur
		} else {
			l.logger.Warn("incumbent policy failed, keeping previous incumbent",
				map[string]interface{}{"error": err.Error()})
		}
		// The freshly appended point is not in the model yet; account for
		// it directly so the incumbent never lags the raw observations.
		if inc.X == nil || l.cfg.Goal.Better(yNew, inc.Value) {
			inc = Incumbent{X: append([]float64(nil), candidate...), Value: yNew}
		}

		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveIteration(i+1, inc, evalTime, overhead)
		}
		l.logger.Debug("iteration completed", map[string]interface{}{
			"iteration":       i + 1,
			"candidate":       candidate,
			"value":           yNew,
			"incumbent_value": inc.Value,
			"overhead":        overhead.String(),
		})

		if l.cfg.IterationTimeout > 0 && time.Since(iterStart) > l.cfg.IterationTimeout {
			// The sentinel stays in the chain so callers can match it
			// with errors.Is.
			return l.result(inc), WrapError(ErrIterationTimeout, KindUnknown, "iteration timed out").
				WithComponent("loop").WithOperation("run").WithIteration(i)
		}

		if l.cfg.Recorder != nil && l.cfg.NumSave > 0 && (i+1)%l.cfg.NumSave == 0 {
			rec := TraceRecord{
				Iteration:         i + 1,
				X:                 l.obs.Inputs(),
				Y:                 l.obs.Outputs(),
				Incumbent:         inc,
				TimeFunction:      evalTime,
				OptimizerOverhead: overhead,
			}
			if err := l.cfg.Recorder.Record(rec); err != nil {
				l.logger.Warn("trace record failed", map[string]interface{}{
					"iteration": i + 1,
					"error":     err.Error(),
				})
			}
		}
	}

	l.logger.Info("run completed", map[string]interface{}{
		"iterations":      l.cfg.NumIterations,
		"observations":    l.obs.Len(),
		"incumbent_value": inc.Value,
	})
	return l.result(inc), nil
}

// result assembles the Result, falling back to the best raw observation
// when no incumbent has been computed yet.
func (l *Loop) result(inc Incumbent) *Result {
	if inc.X == nil && l.obs.Len() > 0 {
		best := 0
		for i := 1; i < l.obs.Len(); i++ {
			if l.cfg.Goal.Better(l.obs.At(i).Y, l.obs.At(best).Y) {
				best = i
			}
		}
		o := l.obs.At(best)
		inc = Incumbent{X: append([]float64(nil), o.X...), Value: o.Y}
	}
	return &Result{
		Observations: l.obs,
		Incumbent:    inc,
		Iterations:   max(0, l.obs.Len()-1),
	}
}

// annotate attaches iteration and candidate context to a propagating
// error when the component did not set them itself.
func (l *Loop) annotate(err error, iteration int, candidate []float64) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Iteration < 0 && iteration >= 0 {
			e.Iteration = iteration
		}
		if e.Input == nil && candidate != nil {
			e.Input = append([]float64(nil), candidate...)
		}
		return err
	}
	wrapped := WrapError(err, KindUnknown, "loop step failed").
		WithComponent("loop").WithOperation("run")
	if iteration >= 0 {
		wrapped = wrapped.WithIteration(iteration)
	}
	if candidate != nil {
		wrapped = wrapped.WithInput(candidate)
	}
	return wrapped
}

// SingleRow wraps x as the 1 x d matrix shape used across the loop's
// component boundaries.
func SingleRow(x []float64) *mat.Dense {
	return mat.NewDense(1, len(x), append([]float64(nil), x...))
}
