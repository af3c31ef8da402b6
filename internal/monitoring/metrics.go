package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Operation metrics
	OpsEnqueued *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec

	// Batch metrics
	BatchesFlushed prometheus.Counter
	BatchSize      prometheus.Histogram

	// Policy metrics
	Violations *prometheus.CounterVec

	// Resource metrics
	LimitBreaches *prometheus.CounterVec
	MemoryMB      prometheus.Gauge

	// Execution metrics
	InvocationsActive prometheus.Gauge
	InvocationsTotal  *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
}

// NewMetrics creates a metrics collector on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Operation metrics
		OpsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiscript_ops_enqueued_total",
				Help: "Total number of operations accepted into a batch",
			},
			[]string{"kind"},
		),
		OpsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiscript_ops_rejected_total",
				Help: "Total number of operations dropped before batching",
			},
			[]string{"kind", "reason"},
		),

		// Batch metrics
		BatchesFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "uiscript_batches_flushed_total",
				Help: "Total number of batches delivered to the consumer",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uiscript_batch_size_ops",
				Help:    "Operations per delivered batch",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		// Policy metrics
		Violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiscript_policy_violations_total",
				Help: "Total number of content policy violations",
			},
			[]string{"directive", "severity"},
		),

		// Resource metrics
		LimitBreaches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiscript_limit_breaches_total",
				Help: "Total number of resource limit breaches",
			},
			[]string{"limit"},
		),
		MemoryMB: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "uiscript_memory_mb",
				Help: "Heap usage observed at the last memory check",
			},
		),

		// Execution metrics
		InvocationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "uiscript_invocations_active",
				Help: "Number of scripts currently executing",
			},
		),
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiscript_invocations_total",
				Help: "Total number of script invocations",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uiscript_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
	}
}

// All Record helpers are nil-safe so that components with an optional
// collector can call them unconditionally.

// RecordOpEnqueued records one operation accepted into a batch.
func (m *Metrics) RecordOpEnqueued(kind string) {
	if m == nil {
		return
	}
	m.OpsEnqueued.WithLabelValues(kind).Inc()
}

// RecordOpRejected records one operation dropped before batching.
func (m *Metrics) RecordOpRejected(kind, reason string) {
	if m == nil {
		return
	}
	m.OpsRejected.WithLabelValues(kind, reason).Inc()
}

// RecordBatch records a delivered batch and its size.
func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchesFlushed.Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordViolation records a policy violation.
func (m *Metrics) RecordViolation(directive, severity string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(directive, severity).Inc()
}

// RecordLimitBreach records a resource limit breach.
func (m *Metrics) RecordLimitBreach(limit string) {
	if m == nil {
		return
	}
	m.LimitBreaches.WithLabelValues(limit).Inc()
}

// RecordMemory records the heap sample from the last memory check.
func (m *Metrics) RecordMemory(mb float64) {
	if m == nil {
		return
	}
	m.MemoryMB.Set(mb)
}

// InvocationStarted marks one script as executing. Balanced by
// RecordInvocation.
func (m *Metrics) InvocationStarted() {
	if m == nil {
		return
	}
	m.InvocationsActive.Inc()
}

// RecordInvocation records a finished invocation with its outcome and
// duration, and releases the active slot claimed by InvocationStarted.
func (m *Metrics) RecordInvocation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InvocationsActive.Dec()
	m.InvocationsTotal.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
}
