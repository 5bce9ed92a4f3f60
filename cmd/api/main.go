package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gatecfg "kb-gate/internal/config"
	hhttp "kb-gate/internal/handler/http"
	"kb-gate/internal/handler/http/auth"
	"kb-gate/internal/handler/http/middleware"
	"kb-gate/internal/handler/http/requestid"
	"kb-gate/internal/handler/http/respond"
	"kb-gate/internal/infra/notifier"
	"kb-gate/internal/observability/logging"
	"kb-gate/internal/observability/reqlog"
	"kb-gate/internal/observability/tracing"
	"kb-gate/pkg/config"
	"kb-gate/pkg/ipblock"
	"kb-gate/pkg/ratelimit"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	policy := loadPolicy(logger)
	version := getVersion()

	components := setupServer(logger, policy, version)
	runServer(logger, components, version)
}

// loadPolicy loads the gate policy from GATE_CONFIG_FILE, falling back to the
// built-in defaults when no file is configured.
func loadPolicy(logger *slog.Logger) *gatecfg.GateConfig {
	path := os.Getenv("GATE_CONFIG_FILE")
	if path == "" {
		logger.Info("no gate config file set, using defaults")
		return gatecfg.DefaultGateConfig()
	}

	policy, err := gatecfg.LoadGateConfig(path)
	if err != nil {
		logger.Error("failed to load gate config", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("gate config loaded",
		slog.String("path", path),
		slog.Int("routes", len(policy.Gate.Routes)))
	return policy
}

func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// ServerComponents holds the wired gate and everything runServer needs for
// background maintenance and cleanup.
type ServerComponents struct {
	Handler     http.Handler
	Store       ratelimit.CounterStore
	Guard       *ipblock.Guard
	Metrics     *ratelimit.PrometheusMetrics
	RedisClient *redis.Client
}

// setupServer wires the gate pipeline and returns the root handler.
func setupServer(logger *slog.Logger, policy *gatecfg.GateConfig, version string) *ServerComponents {
	rateLimitConfig, err := config.LoadRateLimitConfig()
	if err != nil {
		logger.Error("failed to load rate limit configuration", slog.Any("error", err))
		os.Exit(1)
	}

	proxyConfig, err := middleware.LoadTrustedProxyConfig()
	if err != nil {
		logger.Error("failed to load trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var ipExtractor middleware.IPExtractor
	if proxyConfig.Enabled {
		ipExtractor = middleware.NewTrustedProxyExtractor(*proxyConfig)
		logger.Info("trusted proxy mode enabled",
			slog.Int("trusted_proxies_count", len(proxyConfig.AllowedCIDRs)))
	} else {
		ipExtractor = &middleware.RemoteAddrExtractor{}
		logger.Info("using RemoteAddr for client addresses, proxy headers ignored")
	}

	corsPolicy, err := middleware.LoadCORSPolicy()
	if err != nil {
		logger.Error("failed to load CORS configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("CORS enabled",
		slog.Any("allowed_origins", corsPolicy.Validator.AllowedOrigins()),
		slog.Any("allowed_methods", corsPolicy.AllowedMethods),
		slog.Any("allowed_headers", corsPolicy.AllowedHeaders),
		slog.Int("max_age", corsPolicy.MaxAge))

	rlMetrics := ratelimit.NewPrometheusMetrics()

	var store ratelimit.CounterStore
	var redisClient *redis.Client
	switch rateLimitConfig.Store {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     rateLimitConfig.RedisAddr,
			Password: rateLimitConfig.RedisPassword,
			DB:       rateLimitConfig.RedisDB,
		})
		store = ratelimit.NewRedisCounterStore(redisClient, "gate:rl", &ratelimit.SystemClock{})
		logger.Info("rate limiting: redis counter store",
			slog.String("addr", rateLimitConfig.RedisAddr))
	default:
		store = ratelimit.NewInMemoryCounterStore(ratelimit.InMemoryStoreConfig{
			MaxKeys: rateLimitConfig.MaxActiveKeys,
		})
		logger.Info("rate limiting: in-memory counter store",
			slog.Int("max_keys", rateLimitConfig.MaxActiveKeys))
	}
	limiter := ratelimit.NewFixedWindowLimiter(store, &ratelimit.SystemClock{}, rlMetrics)

	if !rateLimitConfig.Enabled {
		logger.Warn("rate limiting is DISABLED, not recommended for production")
	}

	guard := ipblock.NewGuard(ipblock.Config{
		MaxFailedAttempts: policy.Gate.Block.MaxFailedAttempts,
		BlockDuration:     policy.Gate.Block.BlockDuration.Std(),
	})

	authenticator := buildAuthenticator(logger, policy)
	apiKeys := auth.NewAPIKeyValidator(
		os.Getenv(policy.Gate.APIKey.SecretEnv),
		policy.Gate.APIKey.Strict,
		logger,
	)

	requestLog := reqlog.NewBuffer(policy.Gate.RequestLog.MaxEntries, policy.Gate.RequestLog.Enabled)

	var blockNotifier notifier.Notifier = notifier.NewNoOpNotifier()
	if webhookURL := os.Getenv("SLACK_WEBHOOK_URL"); webhookURL != "" {
		blockNotifier = notifier.NewSlackNotifier(notifier.SlackConfig{
			Enabled:    true,
			WebhookURL: webhookURL,
			Timeout:    10 * time.Second,
		})
		logger.Info("slack block notifications enabled")
	}

	gate := middleware.NewGate(
		policy, guard, corsPolicy, authenticator, apiKeys,
		limiter, rateLimitConfig, requestLog, blockNotifier,
		ipExtractor, logger,
	)

	handler := setupRoutes(logger, gate, guard, store, requestLog, redisClient, rlMetrics, rateLimitConfig.Enabled, version)

	return &ServerComponents{
		Handler:     handler,
		Store:       store,
		Guard:       guard,
		Metrics:     rlMetrics,
		RedisClient: redisClient,
	}
}

// buildAuthenticator assembles the token verifier and role resolver selected
// by the gate policy.
func buildAuthenticator(logger *slog.Logger, policy *gatecfg.GateConfig) *auth.Authenticator {
	timeout := policy.Gate.Auth.VerifyTimeout.Std()

	if policy.Gate.Auth.Verifier == "remote" {
		remote := auth.NewRemoteVerifier(auth.RemoteVerifierConfig{
			BaseURL: policy.Gate.Auth.IdentityServiceURL,
			Timeout: timeout,
		})
		logger.Info("authentication: remote identity service",
			slog.String("base_url", policy.Gate.Auth.IdentityServiceURL))
		return auth.NewAuthenticator(remote, remote, timeout, logger)
	}

	secret := os.Getenv(policy.Gate.Auth.JWTSecretEnv)
	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		logger.Error("JWT verifier initialization failed",
			slog.String("secret_env", policy.Gate.Auth.JWTSecretEnv),
			slog.Any("error", err))
		os.Exit(1)
	}
	roles := auth.NewStaticRoleResolver(policy.Gate.Auth.Roles, policy.Gate.Auth.DefaultRole)
	logger.Info("authentication: local JWT verification")
	return auth.NewAuthenticator(verifier, roles, timeout, logger)
}

// setupRoutes registers public endpoints and puts everything else behind the
// gate pipeline.
func setupRoutes(
	logger *slog.Logger,
	gate *middleware.Gate,
	guard *ipblock.Guard,
	store ratelimit.CounterStore,
	requestLog *reqlog.Buffer,
	redisClient *redis.Client,
	rlMetrics *ratelimit.PrometheusMetrics,
	rateLimitEnabled bool,
	version string,
) http.Handler {
	health := &hhttp.HealthHandler{
		Version:          version,
		Store:            store,
		Guard:            guard,
		RequestLog:       requestLog,
		RateLimitEnabled: rateLimitEnabled,
	}
	if redisClient != nil {
		// Assigning a nil *redis.Client would make the interface field
		// non-nil and crash the redis check.
		health.Redis = redisClient
	}

	publicMux := http.NewServeMux()
	publicMux.Handle("/health", health)
	publicMux.Handle("/ready", health)
	publicMux.Handle("/live", hhttp.LivenessHandler())
	publicMux.Handle("/metrics", hhttp.MetricsHandler(rlMetrics.Registry()))

	protectedMux := http.NewServeMux()
	protectedMux.Handle("/api/admin/requests", &hhttp.RequestLogHandler{Log: requestLog})
	protectedMux.Handle("/api/admin/blocks", &hhttp.BlockAdminHandler{Guard: guard})
	protectedMux.Handle("/api/admin/blocks/", &hhttp.BlockAdminHandler{Guard: guard})
	protectedMux.Handle("/api/", upstreamHandler(logger))

	rootMux := http.NewServeMux()
	rootMux.Handle("/health", publicMux)
	rootMux.Handle("/ready", publicMux)
	rootMux.Handle("/live", publicMux)
	rootMux.Handle("/metrics", publicMux)
	rootMux.Handle("/", gate.Handler(protectedMux))

	return applyMiddleware(logger, rootMux)
}

// upstreamHandler proxies gated API traffic to the configured upstream. When
// no upstream is configured the gate answers 502 for business routes, which
// keeps a policy-only deployment honest about what sits behind it.
func upstreamHandler(logger *slog.Logger) http.Handler {
	upstream := os.Getenv("UPSTREAM_URL")
	if upstream == "" {
		logger.Warn("UPSTREAM_URL not set, gated routes will answer 502")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respond.Error(w, http.StatusBadGateway, "no upstream configured")
		})
	}

	target, err := url.Parse(upstream)
	if err != nil {
		logger.Error("invalid UPSTREAM_URL", slog.Any("error", err))
		os.Exit(1)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.FromContext(r.Context()).Error("upstream request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		respond.Error(w, http.StatusBadGateway, "upstream unavailable")
	}
	logger.Info("proxying gated traffic", slog.String("upstream", target.String()))
	return proxy
}

// applyMiddleware wraps the handler with the ambient middleware chain.
// Order, outermost first: request ID, tracing, recovery, logging, body
// limit, metrics. The gate itself runs inside this chain, attached in
// setupRoutes.
func applyMiddleware(logger *slog.Logger, handler http.Handler) http.Handler {
	return hhttp.Chain(handler,
		requestid.Middleware,
		tracing.Middleware,
		hhttp.Recover(logger),
		hhttp.Logging(logger),
		hhttp.LimitRequestBody(1<<20),
		hhttp.MetricsMiddleware,
	)
}

// runServer starts the HTTP server, the store maintenance loop, and handles
// graceful shutdown on SIGINT/SIGTERM.
func runServer(logger *slog.Logger, components *ServerComponents, version string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Slowloris protection
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hhttp.StartStoreMaintenance(gctx, components.Store, components.Guard, components.Metrics, 5*time.Minute)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}

	if components.RedisClient != nil {
		if err := components.RedisClient.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}
	logger.Info("server stopped")
}
