package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// All metrics live in a custom registry so tests stay isolated and multiple
// limiter instances never fight over metric registration. Pass Registry() to
// promhttp.HandlerFor to expose them.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// decisionsTotal tracks admission decisions by route class and status
	// ("allowed" or "denied").
	decisionsTotal *prometheus.CounterVec

	// checkDuration tracks how long admission checks take. Buckets target
	// sub-millisecond in-memory checks up to slow Redis round trips.
	checkDuration prometheus.Histogram

	// activeKeys tracks the number of counters currently in the store.
	activeKeys prometheus.Gauge

	// evictionsTotal tracks expired counters removed by purge runs.
	evictionsTotal prometheus.Counter
}

// NewPrometheusMetrics creates a PrometheusMetrics with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_rate_limit_decisions_total",
				Help: "Rate limit admission decisions by route class and status",
			},
			[]string{"class", "status"},
		),
		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gate_rate_limit_check_duration_seconds",
				Help:    "Duration of rate limit admission checks",
				Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		activeKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gate_rate_limit_active_keys",
				Help: "Number of counters currently held by the store",
			},
		),
		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gate_rate_limit_evictions_total",
				Help: "Expired counters removed by purge runs",
			},
		),
	}

	registry.MustRegister(m.decisionsTotal, m.checkDuration, m.activeKeys, m.evictionsTotal)
	return m
}

// Registry returns the metrics registry for exposure via promhttp.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAllowed records an admitted request.
func (m *PrometheusMetrics) RecordAllowed(class string) {
	m.decisionsTotal.WithLabelValues(class, "allowed").Inc()
}

// RecordDenied records a rejected request.
func (m *PrometheusMetrics) RecordDenied(class string) {
	m.decisionsTotal.WithLabelValues(class, "denied").Inc()
}

// RecordCheckDuration records the duration of an admission check.
func (m *PrometheusMetrics) RecordCheckDuration(duration time.Duration) {
	m.checkDuration.Observe(duration.Seconds())
}

// SetActiveKeys records the current number of counters in the store.
func (m *PrometheusMetrics) SetActiveKeys(count int) {
	m.activeKeys.Set(float64(count))
}

// RecordEviction records purged counters.
func (m *PrometheusMetrics) RecordEviction(count int) {
	m.evictionsTotal.Add(float64(count))
}
