package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics records the lifecycle of widget queries.
type QueryMetrics struct {
	attempts   *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	suppressed prometheus.Counter
}

// NewQueryMetrics registers the query metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	if reg == nil {
		return &QueryMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_query_attempts_total",
		Help: "Remote analytics fetch attempts by result.",
	}, []string{"result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_query_outcomes_total",
		Help: "Terminal widget query states.",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_query_duration_seconds",
		Help:    "Time from execution to terminal state, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	suppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_query_suppressed_emissions_total",
		Help: "State transitions dropped because the lifecycle was cancelled or superseded.",
	})
	reg.MustRegister(attempts, outcomes, duration, suppressed)
	return &QueryMetrics{
		attempts:   attempts,
		outcomes:   outcomes,
		duration:   duration,
		suppressed: suppressed,
	}
}

// IncAttempt counts one fetch attempt; result is "ok", "network" or "application".
func (m *QueryMetrics) IncAttempt(result string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveOutcome records a terminal state and how long it took to reach.
func (m *QueryMetrics) ObserveOutcome(status string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	status = normalizeLabel(status)
	m.outcomes.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *QueryMetrics) IncSuppressed() {
	if m == nil || m.suppressed == nil {
		return
	}
	m.suppressed.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
