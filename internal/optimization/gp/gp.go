// Package gp implements a Gaussian process surrogate model satisfying the
// optimization.Model contract.
package gp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/TALUS/internal/optimization"
	"github.com/copyleftdev/TALUS/internal/optimization/kernels"
)

// fit holds everything derived from one Train call. Replaced wholesale on
// every re-fit, never partially updated.
type fit struct {
	X      *mat.Dense
	y      *mat.VecDense
	alpha  *mat.VecDense
	chol   *mat.Cholesky
	hypers []float64
}

// GP is a Gaussian process regression model. Not safe for concurrent use;
// the loop owns it for the run's lifetime.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64
	restarts int
	rng      *rand.Rand
	logger   *zap.Logger
	pool     *matrixPool

	cur *fit
}

// Option configures a GP.
type Option func(*GP)

// WithLogger sets the structured logger used for fit diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(g *GP) { g.logger = l }
}

// WithHyperparameterRestarts enables marginal-likelihood hyperparameter
// optimization with n random restarts per Train call. Zero disables it and
// keeps the kernel's current hyperparameters.
func WithHyperparameterRestarts(n int) Option {
	return func(g *GP) { g.restarts = n }
}

// WithRNG sets the random source used by hyperparameter restarts.
func WithRNG(rng *rand.Rand) Option {
	return func(g *GP) { g.rng = rng }
}

// New creates a Gaussian process model with the given kernel and noise
// variance.
func New(kernel kernels.Kernel, noiseVar float64, opts ...Option) *GP {
	g := &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		rng:      rand.New(rand.NewSource(1)),
		logger:   zap.NewNop(),
		pool:     newMatrixPool(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("gaussian_process")
	return g
}

// Train fits the model to the full observation set, replacing any previous
// fit. When hyperparameter optimization fails to converge the model falls
// back to its previous hyperparameters; when factorization fails outright
// and a previous fit exists, that fit is kept and Train returns nil.
func (g *GP) Train(X *mat.Dense, y *mat.VecDense) error {
	const op = "train"

	if X == nil || y == nil {
		return optimization.NewError(optimization.KindFit, "training matrices must not be nil").
			WithComponent("gaussian_process").WithOperation(op)
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return optimization.NewError(optimization.KindFit, "training matrix must not be empty").
			WithComponent("gaussian_process").WithOperation(op)
	}
	if n != y.Len() {
		return optimization.NewErrorf(optimization.KindFit,
			"dimension mismatch: X has %d samples but y has length %d", n, y.Len()).
			WithComponent("gaussian_process").WithOperation(op)
	}

	g.logger.Debug("fitting model",
		zap.Int("samples", n),
		zap.Int("features", d),
		zap.Float64("noise_var", g.noiseVar),
	)

	if g.restarts > 0 {
		if err := g.optimizeHyperparameters(X, y); err != nil {
			// Recoverable: keep going with the previous hyperparameters.
			g.logger.Warn("hyperparameter optimization did not converge, keeping previous values",
				zap.Error(err),
				zap.Float64s("hyperparameters", g.kernel.Hyperparameters()),
			)
		}
	}

	next, err := g.factorize(X, y)
	if err != nil {
		if g.cur != nil {
			g.logger.Warn("re-fit failed, keeping previous fit", zap.Error(err))
			return nil
		}
		return optimization.WrapError(err, optimization.KindFit, "initial fit failed").
			WithComponent("gaussian_process").WithOperation(op)
	}

	g.cur = next
	g.logger.Debug("model fitted",
		zap.Int("samples", n),
		zap.Float64s("hyperparameters", next.hypers),
	)
	return nil
}

// factorize builds the noisy kernel matrix, runs a Cholesky decomposition
// with escalating jitter, and solves for the alpha weights.
func (g *GP) factorize(X *mat.Dense, y *mat.VecDense) (*fit, error) {
	n, _ := X.Dims()

	K := g.pool.getSym(n)
	defer g.pool.putSym(K)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		K.SetSym(i, i, g.kernel.Eval(xi, xi)+g.noiseVar)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j)))
		}
	}

	// Escalate jitter until the matrix factorizes. Ten decades from 1e-12
	// covers everything a sane kernel can produce.
	jitter := 1e-12
	for attempt := 0; attempt < 10; attempt++ {
		Kj := mat.NewSymDense(n, nil)
		Kj.CopySym(K)
		for i := 0; i < n; i++ {
			Kj.SetSym(i, i, Kj.At(i, i)+jitter)
		}

		var chol mat.Cholesky
		if !chol.Factorize(Kj) {
			g.logger.Debug("cholesky factorization failed, increasing jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter),
			)
			jitter *= 10
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, y); err != nil {
			jitter *= 10
			continue
		}

		return &fit{
			X:      mat.DenseCopyOf(X),
			y:      mat.VecDenseCopyOf(y),
			alpha:  alpha,
			chol:   &chol,
			hypers: g.kernel.Hyperparameters(),
		}, nil
	}

	return nil, errors.New("kernel matrix is not positive definite at any jitter level")
}

// Predict returns the posterior mean and variance at each row of X under
// the current fit. Calling Predict before Train is an error.
func (g *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "predict"

	if X == nil {
		return nil, nil, optimization.NewError(optimization.KindUnknown, "input matrix must not be nil").
			WithComponent("gaussian_process").WithOperation(op)
	}
	if g.cur == nil {
		return nil, nil, optimization.NewError(optimization.KindUnknown, "model not trained").
			WithComponent("gaussian_process").WithOperation(op)
	}

	nTest, d := X.Dims()
	nTrain, dTrain := g.cur.X.Dims()
	if d != dTrain {
		return nil, nil, optimization.NewErrorf(optimization.KindUnknown,
			"input has %d features, model was trained on %d", d, dTrain).
			WithComponent("gaussian_process").WithOperation(op)
	}

	// Restore the fit's hyperparameters in case a later failed re-fit
	// attempt moved the kernel.
	if err := g.kernel.SetHyperparameters(g.cur.hypers); err != nil {
		return nil, nil, optimization.WrapError(err, optimization.KindUnknown, "restoring fit hyperparameters").
			WithComponent("gaussian_process").WithOperation(op)
	}

	kss := make([]float64, nTest)
	Kstar := g.pool.getDense(nTest, nTrain)
	defer g.pool.putDense(Kstar)
	for i := 0; i < nTest; i++ {
		xs := X.RawRowView(i)
		kss[i] = g.kernel.Eval(xs, xs) + g.noiseVar
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, g.kernel.Eval(xs, g.cur.X.RawRowView(j)))
		}
	}

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, g.cur.alpha)

	// variance_i = k(x_i, x_i) - k_*^T K^-1 k_*, clamped non-negative.
	variance := mat.NewVecDense(nTest, nil)
	v := mat.NewDense(nTrain, nTest, nil)
	if err := g.cur.chol.SolveTo(v, Kstar.T()); err != nil {
		return nil, nil, optimization.WrapError(err, optimization.KindUnknown, "solving predictive covariance system").
			WithComponent("gaussian_process").WithOperation(op)
	}
	for i := 0; i < nTest; i++ {
		var sum float64
		for j := 0; j < nTrain; j++ {
			sum += Kstar.At(i, j) * v.At(j, i)
		}
		variance.SetVec(i, math.Max(0, kss[i]-sum))
	}

	return mean, variance, nil
}

// TrainingData returns the matrices of the current fit, or nil before the
// first successful Train.
func (g *GP) TrainingData() (*mat.Dense, *mat.VecDense) {
	if g.cur == nil {
		return nil, nil
	}
	return g.cur.X, g.cur.y
}

// logMarginalLikelihood evaluates the log marginal likelihood of the data
// under the given kernel hyperparameters. Returns -Inf when the kernel
// matrix does not factorize.
func (g *GP) logMarginalLikelihood(X *mat.Dense, y *mat.VecDense, hypers []float64) float64 {
	if err := g.kernel.SetHyperparameters(hypers); err != nil {
		return math.Inf(-1)
	}
	n, _ := X.Dims()

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		K.SetSym(i, i, g.kernel.Eval(xi, xi)+g.noiseVar+1e-10)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j)))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(K) {
		return math.Inf(-1)
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, y); err != nil {
		return math.Inf(-1)
	}

	// log p(y|X) = -1/2 y^T alpha - log det(L) - n/2 log(2 pi)
	return -0.5*mat.Dot(y, alpha) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
}

// optimizeHyperparameters maximizes the log marginal likelihood over the
// kernel hyperparameters with multiple Nelder-Mead restarts in log space.
// On failure the kernel is restored to the hyperparameters it had on entry.
func (g *GP) optimizeHyperparameters(X *mat.Dense, y *mat.VecDense) error {
	saved := g.kernel.Hyperparameters()
	nHyp := len(saved)

	objective := func(theta []float64) float64 {
		hypers := make([]float64, nHyp)
		for i, t := range theta {
			// Optimize in log space to keep scales positive; cap to avoid
			// overflow in the kernel.
			if t > 20 || t < -20 {
				return math.Inf(1)
			}
			hypers[i] = math.Exp(t)
		}
		return -g.logMarginalLikelihood(X, y, hypers)
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 50,
		},
		MajorIterations: 200,
	}

	bestVal := math.Inf(1)
	var bestTheta []float64

	for r := 0; r < g.restarts; r++ {
		start := make([]float64, nHyp)
		if r == 0 {
			for i, h := range saved {
				start[i] = math.Log(h)
			}
		} else {
			for i := range start {
				// Log-uniform over roughly [e^-3, e^3].
				start[i] = -3 + 6*g.rng.Float64()
			}
		}

		result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
		if err != nil || result == nil {
			continue
		}
		if result.F < bestVal && !math.IsInf(result.F, 1) {
			bestVal = result.F
			bestTheta = append([]float64(nil), result.X...)
		}
	}

	if bestTheta == nil {
		if err := g.kernel.SetHyperparameters(saved); err != nil {
			return fmt.Errorf("restoring hyperparameters: %w", err)
		}
		return errors.New("no restart converged to a finite marginal likelihood")
	}

	hypers := make([]float64, nHyp)
	for i, t := range bestTheta {
		hypers[i] = math.Exp(t)
	}
	if err := g.kernel.SetHyperparameters(hypers); err != nil {
		restoreErr := g.kernel.SetHyperparameters(saved)
		if restoreErr != nil {
			return fmt.Errorf("applying optimized hyperparameters: %w", err)
		}
		return fmt.Errorf("optimized hyperparameters rejected by kernel: %w", err)
	}

	g.logger.Debug("hyperparameters optimized",
		zap.Float64s("hyperparameters", hypers),
		zap.Float64("neg_log_marginal_likelihood", bestVal),
	)
	return nil
}
