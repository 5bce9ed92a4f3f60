package ratelimit

import "time"

// NoOpMetrics implements Metrics with no-ops, for tests and for deployments
// that do not scrape Prometheus.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new NoOpMetrics instance.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordAllowed is a no-op.
func (m *NoOpMetrics) RecordAllowed(class string) {}

// RecordDenied is a no-op.
func (m *NoOpMetrics) RecordDenied(class string) {}

// RecordCheckDuration is a no-op.
func (m *NoOpMetrics) RecordCheckDuration(duration time.Duration) {}

// SetActiveKeys is a no-op.
func (m *NoOpMetrics) SetActiveKeys(count int) {}

// RecordEviction is a no-op.
func (m *NoOpMetrics) RecordEviction(count int) {}
