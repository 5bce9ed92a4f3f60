package config

import (
	"fmt"
	"time"
)

// RouteClass identifies a group of routes that share one rate-limit budget.
type RouteClass string

// Route classes known to the gate. Each class has its own request budget per
// client identifier; anything not matched by a more specific class falls back
// to ClassDefault.
const (
	ClassChat     RouteClass = "chat"
	ClassSearch   RouteClass = "search"
	ClassDocWrite RouteClass = "document_write"
	ClassDefault  RouteClass = "default"
)

// RouteLimit is the rate-limit budget for one route class.
type RouteLimit struct {
	// MaxRequests is the maximum number of requests allowed per client
	// identifier within one window.
	MaxRequests int

	// Window is the fixed-window duration.
	Window time.Duration
}

// RateLimitConfig holds all rate limiting settings for the gate.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off globally.
	Enabled bool

	// Routes maps each route class to its budget. Always contains an entry
	// for ClassDefault.
	Routes map[RouteClass]RouteLimit

	// MaxActiveKeys caps the number of counters kept in the in-memory store
	// before opportunistic purging kicks in.
	MaxActiveKeys int

	// Store selects the counter store backend: "memory" or "redis".
	Store string

	// RedisAddr, RedisPassword and RedisDB configure the Redis-backed store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Default route-class budgets. These are configuration inputs, overridable
// via RATE_LIMIT_<CLASS>_LIMIT and RATE_LIMIT_<CLASS>_WINDOW.
var defaultRouteLimits = map[RouteClass]RouteLimit{
	ClassChat:     {MaxRequests: 20, Window: time.Minute},
	ClassSearch:   {MaxRequests: 30, Window: time.Minute},
	ClassDocWrite: {MaxRequests: 10, Window: time.Minute},
	ClassDefault:  {MaxRequests: 100, Window: time.Minute},
}

// envKey maps a route class to its environment variable segment.
var envKey = map[RouteClass]string{
	ClassChat:     "CHAT",
	ClassSearch:   "SEARCH",
	ClassDocWrite: "DOCWRITE",
	ClassDefault:  "DEFAULT",
}

// LoadRateLimitConfig loads the rate limiting configuration from environment
// variables and validates it.
//
// Environment variables:
//   - RATE_LIMIT_ENABLED: enable rate limiting (default: true)
//   - RATE_LIMIT_<CLASS>_LIMIT: max requests per window for a class
//   - RATE_LIMIT_<CLASS>_WINDOW: window duration for a class (e.g. "60s")
//   - RATE_LIMIT_MAX_KEYS: in-memory store key cap (default: 10000)
//   - RATE_LIMIT_STORE: "memory" (default) or "redis"
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: Redis store settings
//
// Validation is fail-closed: a zero or negative limit or window is a startup
// error, not a silently-ignored value.
func LoadRateLimitConfig() (*RateLimitConfig, error) {
	cfg := &RateLimitConfig{
		Enabled:       GetEnvBool("RATE_LIMIT_ENABLED", true),
		Routes:        make(map[RouteClass]RouteLimit, len(defaultRouteLimits)),
		MaxActiveKeys: GetEnvInt("RATE_LIMIT_MAX_KEYS", 10000),
		Store:         GetEnvString("RATE_LIMIT_STORE", "memory"),
		RedisAddr:     GetEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnvString("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
	}

	for class, def := range defaultRouteLimits {
		limit := RouteLimit{
			MaxRequests: GetEnvInt("RATE_LIMIT_"+envKey[class]+"_LIMIT", def.MaxRequests),
			Window:      GetEnvDuration("RATE_LIMIT_"+envKey[class]+"_WINDOW", def.Window),
		}
		if limit.MaxRequests <= 0 {
			return nil, fmt.Errorf("rate limit for class %q must be positive, got %d", class, limit.MaxRequests)
		}
		if err := ValidatePositiveDuration(limit.Window); err != nil {
			return nil, fmt.Errorf("rate limit window for class %q: %w", class, err)
		}
		cfg.Routes[class] = limit
	}

	if cfg.MaxActiveKeys <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX_KEYS must be positive, got %d", cfg.MaxActiveKeys)
	}

	switch cfg.Store {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STORE must be \"memory\" or \"redis\", got %q", cfg.Store)
	}

	return cfg, nil
}

// Limit returns the budget for the given route class, falling back to the
// default class when the class is unknown.
func (c *RateLimitConfig) Limit(class RouteClass) RouteLimit {
	if l, ok := c.Routes[class]; ok {
		return l
	}
	return c.Routes[ClassDefault]
}
