package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	cfg "kb-gate/internal/config"
	"kb-gate/internal/handler/http/auth"
	"kb-gate/internal/handler/http/respond"
	"kb-gate/internal/handler/http/responsewriter"
	"kb-gate/internal/infra/notifier"
	"kb-gate/internal/observability/logging"
	"kb-gate/internal/observability/reqlog"
	"kb-gate/pkg/config"
	"kb-gate/pkg/ipblock"
	"kb-gate/pkg/ratelimit"
)

// Terminal response bodies. Client-facing text is fixed so callers can rely
// on it; any extra detail goes to the structured log only.
const (
	msgBlocked        = "Too many failed attempts. Please try again later."
	msgThrottled      = "Too many requests. Please try again later."
	msgOriginRejected = "Origin not allowed"
	msgForbidden      = "Insufficient permissions"
)

type gateContextKey string

const (
	subjectContextKey gateContextKey = "gate_subject"
	roleContextKey    gateContextKey = "gate_role"
)

// SubjectFromContext returns the authenticated subject ID, or "" when the
// request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}

// RoleFromContext returns the authenticated caller's role, or "" when the
// request was not authenticated.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}

// Gate runs every inbound request through a fixed sequence of checks before
// it reaches the business handler:
//
//	resolve address -> IP block check -> CORS -> authentication ->
//	rate limit -> handler
//
// The ordering is load-bearing. Blocked addresses are rejected before any
// cryptographic work, preflights are answered before authentication so
// browsers get a cheap answer, and authentication failures feed the block
// guard before the rate limiter is consulted.
type Gate struct {
	policy     *cfg.GateConfig
	guard      *ipblock.Guard
	cors       *CORSPolicy
	auth       *auth.Authenticator
	apiKeys    *auth.APIKeyValidator
	limiter    *ratelimit.FixedWindowLimiter
	limits     *config.RateLimitConfig
	requestLog *reqlog.Buffer
	notifier   notifier.Notifier
	extractor  IPExtractor
	logger     *slog.Logger
}

// NewGate assembles the gate pipeline from its components. All components
// are required; pass a NoOpNotifier rather than nil when notifications are
// disabled.
func NewGate(
	policy *cfg.GateConfig,
	guard *ipblock.Guard,
	cors *CORSPolicy,
	authenticator *auth.Authenticator,
	apiKeys *auth.APIKeyValidator,
	limiter *ratelimit.FixedWindowLimiter,
	limits *config.RateLimitConfig,
	requestLog *reqlog.Buffer,
	blockNotifier notifier.Notifier,
	extractor IPExtractor,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		policy:     policy,
		guard:      guard,
		cors:       cors,
		auth:       authenticator,
		apiKeys:    apiKeys,
		limiter:    limiter,
		limits:     limits,
		requestLog: requestLog,
		notifier:   blockNotifier,
		extractor:  extractor,
		logger:     logger,
	}
}

// Handler wraps the business handler with the gate pipeline.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := logging.WithRequestID(r.Context(), g.logger)
		origin := r.Header.Get("Origin")

		address, err := g.extractor.ExtractIP(r)
		if err != nil {
			// Fall back to the raw remote address so the request is
			// still attributable to something.
			logger.Warn("client address resolution failed",
				slog.String("remote_addr", r.RemoteAddr),
				slog.Any("error", err))
			address = r.RemoteAddr
		}

		if g.guard.IsBlocked(address) {
			auth.RecordBlockedRejection()
			logger.Warn("request from blocked address rejected",
				slog.String("address", address),
				slog.String("path", r.URL.Path))
			g.terminal(w, r, http.StatusForbidden, msgBlocked, origin, address, "", start)
			return
		}

		if r.Method == http.MethodOptions {
			g.cors.Preflight(w, r)
			g.record(r, address, "", http.StatusNoContent, start)
			return
		}
		if origin != "" && !g.cors.IsOriginAllowed(origin) {
			logger.Warn("request from disallowed origin rejected",
				slog.String("origin", origin),
				slog.String("address", address))
			g.terminal(w, r, http.StatusForbidden, msgOriginRejected, origin, address, "", start)
			return
		}

		route := g.policy.RouteFor(r.URL.Path)

		subject, role, ok := g.authenticate(w, r, route, origin, address, start, logger)
		if !ok {
			return
		}

		identifier := "ip:" + address
		if subject != "" {
			identifier = "user:" + subject
		}

		if g.limits.Enabled {
			limit := g.limits.Limit(config.RouteClass(route.Class))
			decision, err := g.limiter.Check(r.Context(), identifier, route.Class, limit.MaxRequests, limit.Window)
			if err != nil {
				logger.Error("rate limit check failed, allowing request",
					slog.String("identifier", identifier),
					slog.Any("error", err))
			}
			if !decision.Allowed {
				logger.Info("request throttled",
					slog.String("identifier", identifier),
					slog.String("class", route.Class),
					slog.Time("reset_at", decision.ResetAt))
				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds(), 10))
				w.Header().Set("X-RateLimit-Reset", decision.ResetAtISO8601())
				g.terminal(w, r, http.StatusTooManyRequests, msgThrottled, origin, address, subject, start)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", decision.ResetAtISO8601())
		}

		ctx := r.Context()
		if subject != "" {
			ctx = context.WithValue(ctx, subjectContextKey, subject)
			ctx = context.WithValue(ctx, roleContextKey, role)
		}

		g.cors.Decorate(w.Header(), origin)
		rw := responsewriter.Wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		g.record(r, address, subject, rw.StatusCode(), start)
		logger.Info("request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.StatusCode()),
			slog.Duration("duration", time.Since(start)))
	})
}

// authenticate runs the credential checks for a route. It returns the
// subject and role of the authenticated caller, or ok=false when a terminal
// response has already been written.
func (g *Gate) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	route cfg.Route,
	origin, address string,
	start time.Time,
	logger *slog.Logger,
) (subject, role string, ok bool) {
	if !route.AuthRequired {
		return "", "", true
	}

	authStart := time.Now()

	// Service-to-service callers present an API key instead of a token.
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if g.apiKeys.Validate(apiKey) {
			auth.RecordAuthRequest(auth.KindAPIKey, "success")
			auth.RecordAuthDuration(auth.KindAPIKey, time.Since(authStart).Seconds())
			g.guard.Clear(address)
			return "service", auth.RoleService, true
		}
		auth.RecordAuthRequest(auth.KindAPIKey, "failure")
		g.recordFailure(r, address, logger)
		logger.Warn("api key rejected", slog.String("address", address))
		g.terminal(w, r, http.StatusUnauthorized, auth.ReasonInvalidToken, origin, address, "", start)
		return "", "", false
	}

	result := g.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
	auth.RecordAuthDuration(auth.KindBearer, time.Since(authStart).Seconds())
	if !result.Authenticated {
		auth.RecordAuthRequest(auth.KindBearer, "failure")
		g.recordFailure(r, address, logger)
		logger.Info("authentication failed",
			slog.String("address", address),
			slog.String("reason", result.FailureReason))
		g.terminal(w, r, http.StatusUnauthorized, result.FailureReason, origin, address, "", start)
		return "", "", false
	}
	auth.RecordAuthRequest(auth.KindBearer, "success")
	g.guard.Clear(address)

	if route.AdminOnly && result.Role != auth.RoleAdmin {
		logger.Warn("admin-only route denied",
			slog.String("subject", result.SubjectID),
			slog.String("role", result.Role),
			slog.String("path", r.URL.Path))
		g.terminal(w, r, http.StatusForbidden, msgForbidden, origin, address, result.SubjectID, start)
		return "", "", false
	}
	if !auth.HasPermission(result.Role, r.Method, r.URL.Path) {
		logger.Warn("permission denied",
			slog.String("subject", result.SubjectID),
			slog.String("role", result.Role),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		g.terminal(w, r, http.StatusForbidden, msgForbidden, origin, address, result.SubjectID, start)
		return "", "", false
	}

	return result.SubjectID, result.Role, true
}

// recordFailure feeds an authentication failure to the block guard and, on
// the failure that crosses the threshold, emits a notification.
func (g *Gate) recordFailure(r *http.Request, address string, logger *slog.Logger) {
	if !g.guard.RecordFailure(address) {
		return
	}

	auth.RecordIPBlock()
	blockedUntil := time.Now().Add(g.policy.Gate.Block.BlockDuration.Std())
	logger.Warn("address blocked after repeated authentication failures",
		slog.String("address", address),
		slog.Int("failed_attempts", g.policy.Gate.Block.MaxFailedAttempts),
		slog.Time("blocked_until", blockedUntil))

	event := notifier.BlockEvent{
		Address:        address,
		FailedAttempts: g.policy.Gate.Block.MaxFailedAttempts,
		BlockedUntil:   blockedUntil,
		LastPath:       r.URL.Path,
	}
	// Notification must not delay the request path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.notifier.NotifyBlock(ctx, event); err != nil {
			logger.Error("block notification failed", slog.Any("error", err))
		}
	}()
}

// terminal writes a short-circuit response, decorated with CORS headers,
// and records it in the request log.
func (g *Gate) terminal(w http.ResponseWriter, r *http.Request, status int, msg, origin, address, subject string, start time.Time) {
	g.cors.Decorate(w.Header(), origin)
	respond.Error(w, status, msg)
	g.record(r, address, subject, status, start)
}

// record appends one entry to the in-memory request log. When the log is
// disabled the entry is never constructed.
func (g *Gate) record(r *http.Request, address, subject string, status int, start time.Time) {
	if !g.requestLog.Enabled() {
		return
	}
	g.requestLog.Append(reqlog.Entry{
		Timestamp:     start,
		Method:        r.Method,
		Path:          r.URL.Path,
		ClientAddress: address,
		SubjectID:     subject,
		Status:        status,
		Duration:      time.Since(start),
	})
}
