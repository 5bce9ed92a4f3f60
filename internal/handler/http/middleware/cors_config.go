package middleware

import (
	"fmt"
	"net/url"
	"strings"

	"kb-gate/pkg/config"
)

// CORSPolicy holds the gate's cross-origin policy, read-only after startup.
type CORSPolicy struct {
	// Validator decides whether an origin is permitted.
	Validator OriginValidator

	// AllowedMethods go on Access-Control-Allow-Methods.
	AllowedMethods []string

	// AllowedHeaders go on Access-Control-Allow-Headers.
	AllowedHeaders []string

	// AllowCredentials enables Access-Control-Allow-Credentials. Required
	// for bearer-token authentication from browsers.
	AllowCredentials bool

	// MaxAge is the preflight cache duration in seconds.
	MaxAge int
}

// Defaults matching the gate's external interface.
var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "X-API-Key"}
)

// LoadCORSPolicy loads the CORS policy from environment variables.
//
// Environment variables:
//   - CORS_ALLOWED_ORIGINS: comma-separated origins (required)
//   - CORS_ALLOWED_METHODS: comma-separated methods
//     (default: GET,POST,PUT,DELETE,OPTIONS)
//   - CORS_ALLOWED_HEADERS: comma-separated headers
//     (default: Content-Type,Authorization,X-API-Key)
//   - CORS_MAX_AGE: preflight cache seconds (default: 86400)
//
// Each configured origin is validated (http/https scheme, no path, query,
// fragment, or trailing slash); a bad entry is a startup error. Every origin
// participates in both exact matching and subdomain-suffix matching.
func LoadCORSPolicy() (*CORSPolicy, error) {
	origins := config.GetEnvStringList("CORS_ALLOWED_ORIGINS", nil)
	if len(origins) == 0 {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS environment variable is required")
	}
	for _, origin := range origins {
		if err := validateOrigin(origin); err != nil {
			return nil, err
		}
	}

	maxAge := config.GetEnvInt("CORS_MAX_AGE", 86400)
	if maxAge < 0 {
		return nil, fmt.Errorf("CORS_MAX_AGE must be non-negative, got %d", maxAge)
	}

	methods := config.GetEnvStringList("CORS_ALLOWED_METHODS", defaultCORSMethods)
	for i, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		switch m {
		case "GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS":
			methods[i] = m
		default:
			return nil, fmt.Errorf("invalid HTTP method %q in CORS_ALLOWED_METHODS", m)
		}
	}

	return &CORSPolicy{
		Validator: NewMultiValidator(
			NewWhitelistValidator(origins),
			NewSuffixValidator(origins),
		),
		AllowedMethods:   methods,
		AllowedHeaders:   config.GetEnvStringList("CORS_ALLOWED_HEADERS", defaultCORSHeaders),
		AllowCredentials: true,
		MaxAge:           maxAge,
	}, nil
}

// validateOrigin rejects malformed origin entries at startup.
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must use http or https scheme: %s", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("origin must not include a path: %s", origin)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin must not include a query or fragment: %s", origin)
	}
	if strings.HasSuffix(origin, "/") {
		return fmt.Errorf("origin must not have a trailing slash: %s", origin)
	}
	return nil
}
