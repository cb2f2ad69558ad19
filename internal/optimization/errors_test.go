package optimization

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  NewError(KindFit, "fit failed"),
			want: "fit failed",
		},
		{
			name: "component and operation",
			err:  NewError(KindDomain, "out of bounds").WithComponent("task").WithOperation("evaluate"),
			want: "task: evaluate: out of bounds",
		},
		{
			name: "iteration and input",
			err: NewError(KindEvaluation, "objective failed").
				WithComponent("loop").WithOperation("run").
				WithIteration(3).WithInput([]float64{1, 2}),
			want: "loop: run: objective failed (iteration 3) (input [1 2])",
		},
		{
			name: "wrapped cause",
			err: WrapError(errors.New("boom"), KindMaximization, "search failed").
				WithComponent("grid_maximizer"),
			want: "grid_maximizer: search failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := WrapError(cause, KindFit, "wrapped")
	assert.ErrorIs(t, err, cause)

	var e *Error
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &e))
	assert.Equal(t, KindFit, e.Kind)
}

func TestIsKind(t *testing.T) {
	err := NewError(KindUnboundAcquisition, "no model bound")
	assert.True(t, IsKind(err, KindUnboundAcquisition))
	assert.False(t, IsKind(err, KindFit))
	assert.False(t, IsKind(errors.New("plain"), KindUnboundAcquisition))
	assert.True(t, IsKind(fmt.Errorf("wrapped: %w", err), KindUnboundAcquisition))
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, KindFit, "never happens"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "domain", KindDomain.String())
	assert.Equal(t, "fit", KindFit.String())
	assert.Equal(t, "unbound_acquisition", KindUnboundAcquisition.String())
	assert.Equal(t, "evaluation", KindEvaluation.String())
	assert.Equal(t, "maximization", KindMaximization.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
