package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics records reconcile worker cycle and per-provider attempt data.
type ReconcileMetrics struct {
	cycleDuration *prometheus.HistogramVec
	attempts      *prometheus.CounterVec
	exhausted     *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconcile metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_cycle_duration_seconds",
		Help:    "Duration of reconcile worker cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_attempts_total",
		Help: "Reconcile handler invocations by provider and outcome.",
	}, []string{"provider", "outcome"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_exhausted_total",
		Help: "Integration events that reached terminal failure.",
	}, []string{"provider"})
	reg.MustRegister(cycleDuration, attempts, exhausted)
	return &ReconcileMetrics{
		cycleDuration: cycleDuration,
		attempts:      attempts,
		exhausted:     exhausted,
	}
}

// ObserveCycle records the duration of one polling cycle.
func (m *ReconcileMetrics) ObserveCycle(outcome string, duration time.Duration) {
	if m == nil || m.cycleDuration == nil {
		return
	}
	m.cycleDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncAttempt counts one handler invocation outcome for the named provider.
func (m *ReconcileMetrics) IncAttempt(provider, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncExhausted counts a terminally failed event for the named provider.
func (m *ReconcileMetrics) IncExhausted(provider string) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.WithLabelValues(normalizeLabel(provider)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
