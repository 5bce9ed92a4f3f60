package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Credential kinds used as the "kind" label on auth metrics.
const (
	KindBearer = "bearer"
	KindAPIKey = "api_key"
)

var (
	// authRequestsTotal counts authentication attempts by credential kind
	// and result.
	authRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_auth_requests_total",
			Help: "Authentication attempts by credential kind and result",
		},
		[]string{"kind", "result"}, // kind: bearer | api_key; result: success | failure
	)

	// authDuration tracks authentication duration by credential kind.
	authDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_auth_duration_seconds",
			Help:    "Authentication duration by credential kind",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"kind"},
	)

	// ipBlocksTotal counts addresses transitioning into the blocked state.
	ipBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_ip_blocks_total",
			Help: "Addresses blocked after repeated authentication failures",
		},
	)

	// blockedRejectionsTotal counts requests rejected because their source
	// address was blocked.
	blockedRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_blocked_rejections_total",
			Help: "Requests rejected due to a blocked source address",
		},
	)
)

// RecordAuthRequest records an authentication attempt.
func RecordAuthRequest(kind, result string) {
	authRequestsTotal.WithLabelValues(kind, result).Inc()
}

// RecordAuthDuration records how long an authentication attempt took.
func RecordAuthDuration(kind string, seconds float64) {
	authDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordIPBlock records an address transitioning into the blocked state.
func RecordIPBlock() {
	ipBlocksTotal.Inc()
}

// RecordBlockedRejection records a request rejected for a blocked address.
func RecordBlockedRejection() {
	blockedRejectionsTotal.Inc()
}
