// Package kernels provides covariance functions for Gaussian process
// regression.
package kernels

import (
	"fmt"
	"math"
)

// Kernel is a covariance function over pairs of points.
type Kernel interface {
	// Eval computes the kernel value between x1 and x2.
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters.
	Hyperparameters() []float64

	// SetHyperparameters replaces the kernel's hyperparameters.
	SetHyperparameters(params []float64) error
}

// sqDist returns the squared Euclidean distance between x1 and x2.
func sqDist(x1, x2 []float64) float64 {
	sum := 0.0
	for i := range x1 {
		d := x1[i] - x2[i]
		sum += d * d
	}
	return sum
}

// validateScale panics on non-positive constructor arguments. Hyperparameter
// setters return errors instead; constructors treat bad values as programming
// errors.
func validateScale(name string, v float64) {
	if v <= 0 {
		panic(fmt.Sprintf("%s must be positive, got %v", name, v))
	}
}

func validatePair(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("hyperparameters must be positive, got %v", params)
	}
	return nil
}

// RBF is the radial basis function (squared exponential) kernel.
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF creates an RBF kernel.
func NewRBF(lengthScale, signalVar float64) *RBF {
	validateScale("lengthScale", lengthScale)
	validateScale("signalVar", signalVar)
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the RBF kernel value between x1 and x2.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	r2 := sqDist(x1, x2) / (2.0 * k.lengthScale * k.lengthScale)
	return k.signalVar * math.Exp(-r2)
}

// Hyperparameters returns [lengthScale, signalVar].
func (k *RBF) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets [lengthScale, signalVar].
func (k *RBF) SetHyperparameters(params []float64) error {
	if err := validatePair(params); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}

// Matern52 is the Matérn kernel with smoothness 5/2, the usual default
// surrogate covariance for Bayesian optimization.
type Matern52 struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52 creates a Matérn 5/2 kernel.
func NewMatern52(lengthScale, signalVar float64) *Matern52 {
	validateScale("lengthScale", lengthScale)
	validateScale("signalVar", signalVar)
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(sqDist(x1, x2)) / k.lengthScale
	sqrt5r := math.Sqrt(5) * r
	poly := 1.0 + sqrt5r + (5.0/3.0)*r*r
	return k.signalVar * poly * math.Exp(-sqrt5r)
}

// Hyperparameters returns [lengthScale, signalVar].
func (k *Matern52) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets [lengthScale, signalVar].
func (k *Matern52) SetHyperparameters(params []float64) error {
	if err := validatePair(params); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}
