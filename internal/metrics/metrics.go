// Package metrics exposes Prometheus instrumentation for optimization
// runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// Collector holds the per-run optimization metrics. It implements
// optimization.IterationObserver so a loop can feed it directly.
type Collector struct {
	iterations     *prometheus.CounterVec
	evalDuration   *prometheus.HistogramVec
	overhead       *prometheus.HistogramVec
	incumbentValue *prometheus.GaugeVec
	runsActive     prometheus.Gauge

	task string
}

// New creates the collectors. Call Register before use.
func New() *Collector {
	return &Collector{
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talus",
			Name:      "iterations_total",
			Help:      "Completed optimization loop iterations.",
		}, []string{"task"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talus",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of objective function evaluations.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"task"}),
		overhead: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talus",
			Name:      "optimizer_overhead_seconds",
			Help:      "Wall time of model fitting, acquisition update and maximization per iteration.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"task"}),
		incumbentValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "talus",
			Name:      "incumbent_value",
			Help:      "Objective value of the current incumbent.",
		}, []string{"task"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talus",
			Name:      "runs_active",
			Help:      "Optimization runs currently iterating.",
		}),
	}
}

// Register registers all collectors with the given registerer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.iterations, c.evalDuration, c.overhead, c.incumbentValue, c.runsActive,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ForTask returns a view of the collector bound to a task label, suitable
// for use as a loop's IterationObserver.
func (c *Collector) ForTask(task string) *Collector {
	view := *c
	view.task = task
	return &view
}

// ObserveIteration implements optimization.IterationObserver.
func (c *Collector) ObserveIteration(_ int, inc optimization.Incumbent, evalTime, overhead time.Duration) {
	c.iterations.WithLabelValues(c.task).Inc()
	c.evalDuration.WithLabelValues(c.task).Observe(evalTime.Seconds())
	c.overhead.WithLabelValues(c.task).Observe(overhead.Seconds())
	c.incumbentValue.WithLabelValues(c.task).Set(inc.Value)
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() { c.runsActive.Inc() }

// RunFinished marks a run as finished.
func (c *Collector) RunFinished() { c.runsActive.Dec() }
