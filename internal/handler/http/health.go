package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"kb-gate/internal/observability/reqlog"
	"kb-gate/pkg/ipblock"
	"kb-gate/pkg/ratelimit"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // ISO 8601 format
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthHandler handles health check endpoint requests. It verifies the
// Redis counter store when one is configured and reports gate state sizes
// for operational monitoring.
type HealthHandler struct {
	Version string

	// Redis is set only when the redis counter store is in use.
	Redis redis.UniversalClient

	Store            ratelimit.CounterStore
	Guard            *ipblock.Guard
	RequestLog       *reqlog.Buffer
	RateLimitEnabled bool
}

// ServeHTTP performs health checks and returns the gate's health status.
// Returns 200 OK if healthy, or 503 Service Unavailable if any check fails.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	allHealthy := true

	if h.Redis != nil {
		redisCheck := h.checkRedis(ctx)
		checks["redis"] = redisCheck
		if redisCheck.Status == "unhealthy" {
			allHealthy = false
		}
	}

	if h.RateLimitEnabled && h.Store != nil {
		checks["rate_limiter"] = h.checkRateLimiter(ctx)
	}

	if h.Guard != nil {
		checks["ip_block_guard"] = CheckStatus{
			Status: "healthy",
			Details: map[string]any{
				"tracked_addresses": h.Guard.Len(),
			},
		}
	}

	if h.RequestLog != nil {
		checks["request_log"] = CheckStatus{
			Status: "healthy",
			Details: map[string]any{
				"enabled": h.RequestLog.Enabled(),
				"entries": h.RequestLog.Len(),
			},
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("health: failed to encode response", slog.Any("error", err))
	}
}

// checkRedis verifies Redis connectivity.
func (h *HealthHandler) checkRedis(ctx context.Context) CheckStatus {
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		return CheckStatus{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	}
	return CheckStatus{Status: "healthy"}
}

// checkRateLimiter reports counter store size. A store error degrades the
// check but is not fatal: the limiter fails open, so the gate keeps serving.
func (h *HealthHandler) checkRateLimiter(ctx context.Context) CheckStatus {
	count, err := h.Store.KeyCount(ctx)
	if err != nil {
		return CheckStatus{
			Status:  "degraded",
			Message: err.Error(),
		}
	}
	return CheckStatus{
		Status: "healthy",
		Details: map[string]any{
			"active_keys": count,
		},
	}
}

// LivenessHandler responds 200 as long as the process is serving requests.
func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
}
