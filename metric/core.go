// Package metric collects Prometheus instrumentation for graph runs,
// message flow and component failures.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all pipeline-level metrics (not component-specific)
type Metrics struct {
	// Graph metrics
	GraphRuns       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	GraphFaulted    prometheus.Counter
	GraphInterrupts prometheus.Counter

	// Message metrics
	MessagesEmitted *prometheus.CounterVec
	IteratorSeeks   *prometheus.CounterVec
	IteratorBatches *prometheus.HistogramVec

	// Component metrics
	ComponentErrors *prometheus.CounterVec
	ConsumeDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		GraphRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "graph",
				Name:      "runs_total",
				Help:      "Total number of graph consume steps",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "libbtrace",
				Subsystem: "graph",
				Name:      "run_duration_seconds",
				Help:      "Full graph run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		GraphFaulted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "graph",
				Name:      "faulted_total",
				Help:      "Total number of graphs latched into the faulty state",
			},
		),

		GraphInterrupts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "graph",
				Name:      "interrupts_total",
				Help:      "Total number of runs stopped by an interrupter",
			},
		),

		MessagesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "messages",
				Name:      "emitted_total",
				Help:      "Total number of messages emitted by iterators",
			},
			[]string{"component", "kind"},
		),

		IteratorSeeks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "iterator",
				Name:      "seeks_total",
				Help:      "Total number of iterator seek operations",
			},
			[]string{"target"},
		),

		IteratorBatches: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "libbtrace",
				Subsystem: "iterator",
				Name:      "batch_size",
				Help:      "Messages returned per upstream batch call",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"component"},
		),

		ComponentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "libbtrace",
				Subsystem: "component",
				Name:      "errors_total",
				Help:      "Total number of component method failures",
			},
			[]string{"component", "class"},
		),

		ConsumeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "libbtrace",
				Subsystem: "component",
				Name:      "consume_duration_seconds",
				Help:      "Sink consume duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),
	}
}

// Register registers every metric with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.GraphRuns,
		m.RunDuration,
		m.GraphFaulted,
		m.GraphInterrupts,
		m.MessagesEmitted,
		m.IteratorSeeks,
		m.IteratorBatches,
		m.ComponentErrors,
		m.ConsumeDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun increments the consume step counter
func (m *Metrics) RecordRun(status string) {
	m.GraphRuns.WithLabelValues(status).Inc()
}

// RecordRunDuration records a full Run call
func (m *Metrics) RecordRunDuration(status string, d time.Duration) {
	m.RunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordFault increments the faulty graph counter
func (m *Metrics) RecordFault() {
	m.GraphFaulted.Inc()
}

// RecordInterrupt increments the interrupted run counter
func (m *Metrics) RecordInterrupt() {
	m.GraphInterrupts.Inc()
}

// RecordMessage increments the emitted message counter
func (m *Metrics) RecordMessage(component, kind string) {
	m.MessagesEmitted.WithLabelValues(component, kind).Inc()
}

// RecordSeek increments the seek counter for a target
func (m *Metrics) RecordSeek(target string) {
	m.IteratorSeeks.WithLabelValues(target).Inc()
}

// RecordBatch records the size of one upstream batch
func (m *Metrics) RecordBatch(component string, size int) {
	m.IteratorBatches.WithLabelValues(component).Observe(float64(size))
}

// RecordComponentError increments the component failure counter
func (m *Metrics) RecordComponentError(component, class string) {
	m.ComponentErrors.WithLabelValues(component, class).Inc()
}

// RecordConsumeDuration records one sink consume
func (m *Metrics) RecordConsumeDuration(component string, d time.Duration) {
	m.ConsumeDuration.WithLabelValues(component).Observe(d.Seconds())
}
