package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

func TestCollectorRegisterAndObserve(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	obs := c.ForTask("sphere")
	obs.ObserveIteration(1, optimization.Incumbent{X: []float64{0}, Value: 2.5},
		10*time.Millisecond, time.Millisecond)
	obs.ObserveIteration(2, optimization.Incumbent{X: []float64{0}, Value: 1.5},
		10*time.Millisecond, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.iterations.WithLabelValues("sphere")))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.incumbentValue.WithLabelValues("sphere")))
}

func TestCollectorRunGauge(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.RunStarted()
	c.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsActive))
	c.RunFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsActive))
}

func TestCollectorDoubleRegisterFails(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}
