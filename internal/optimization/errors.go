package optimization

import (
	"errors"
	"fmt"
)

// Kind classifies an optimization error so callers can react without
// string matching.
type Kind int

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota
	// KindDomain marks a candidate that falls outside the task bounds.
	KindDomain
	// KindFit marks a model re-fit that failed to converge. Fit errors are
	// recoverable: the model falls back to its previous fit.
	KindFit
	// KindUnboundAcquisition marks an acquisition function scored before
	// any Update call. This is a programming error and fatal.
	KindUnboundAcquisition
	// KindEvaluation marks a failure inside the task's objective function.
	// Fatal to the loop, no retry.
	KindEvaluation
	// KindMaximization marks a maximizer that produced no candidate. Fatal.
	KindMaximization
)

// String returns the name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindFit:
		return "fit"
	case KindUnboundAcquisition:
		return "unbound_acquisition"
	case KindEvaluation:
		return "evaluation"
	case KindMaximization:
		return "maximization"
	default:
		return "unknown"
	}
}

// Error is an optimization error carrying enough context to diagnose a
// failed run without re-running it.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Iteration is the loop iteration at the time of failure, or -1 when
	// the error happened outside the iterating phase.
	Iteration int
	// Input is the candidate that triggered the error, if any.
	Input []float64
	// Err is the underlying error, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	case e.Component != "":
		prefix = e.Component
	case e.Op != "":
		prefix = e.Op
	}

	msg := e.Message
	if e.Iteration >= 0 {
		msg = fmt.Sprintf("%s (iteration %d)", msg, e.Iteration)
	}
	if e.Input != nil {
		msg = fmt.Sprintf("%s (input %v)", msg, e.Input)
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithIteration records the loop iteration at which the error occurred.
func (e *Error) WithIteration(i int) *Error {
	e.Iteration = i
	return e
}

// WithInput records the candidate that triggered the error. The slice is
// copied.
func (e *Error) WithInput(x []float64) *Error {
	e.Input = append([]float64(nil), x...)
	return e
}

// NewError creates a new optimization error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Iteration: -1}
}

// NewErrorf creates a new optimization error with a formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Iteration: -1}
}

// WrapError wraps an existing error with a kind and message. If err is
// nil, WrapError returns nil.
func WrapError(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Iteration: -1, Err: err}
}

// IsKind reports whether any error in err's chain is an optimization
// Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
