// Package config loads the gate's policy configuration from a YAML file,
// following the same fail-closed validation approach as the env loaders in
// pkg/config.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "kb-gate/pkg/config"
)

// Duration is a time.Duration that unmarshals from YAML strings like "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Route declares the gating policy for one path prefix.
type Route struct {
	// Prefix is the path prefix this route covers, e.g. "/api/chat".
	Prefix string `yaml:"prefix"`

	// Class is the rate-limit route class: chat, search, document_write or
	// default.
	Class string `yaml:"class"`

	// AuthRequired marks the route as requiring a valid credential.
	AuthRequired bool `yaml:"auth_required"`

	// AdminOnly restricts the route to callers with the admin role.
	AdminOnly bool `yaml:"admin_only"`
}

// GateConfig is the gate's policy configuration.
type GateConfig struct {
	Gate struct {
		Block struct {
			MaxFailedAttempts int      `yaml:"max_failed_attempts"`
			BlockDuration     Duration `yaml:"block_duration"`
		} `yaml:"block"`
		RequestLog struct {
			Enabled    bool `yaml:"enabled"`
			MaxEntries int  `yaml:"max_entries"`
		} `yaml:"request_log"`
		APIKey struct {
			SecretEnv string `yaml:"secret_env"`
			Strict    bool   `yaml:"strict"`
		} `yaml:"api_key"`
		Auth struct {
			Verifier           string            `yaml:"verifier"` // "jwt" or "remote"
			JWTSecretEnv       string            `yaml:"jwt_secret_env"`
			IdentityServiceURL string            `yaml:"identity_service_url"`
			VerifyTimeout      Duration          `yaml:"verify_timeout"`
			DefaultRole        string            `yaml:"default_role"`
			Roles              map[string]string `yaml:"roles"`
		} `yaml:"auth"`
		Routes []Route `yaml:"routes"`
	} `yaml:"gate"`
}

// DefaultGateConfig returns the policy used when no config file is given,
// with thresholds overridable via environment variables.
func DefaultGateConfig() *GateConfig {
	cfg := &GateConfig{}
	cfg.Gate.Block.MaxFailedAttempts = pkgconfig.GetEnvInt("GATE_BLOCK_MAX_FAILURES", 10)
	cfg.Gate.Block.BlockDuration = Duration(pkgconfig.GetEnvDuration("GATE_BLOCK_DURATION", 15*time.Minute))
	cfg.Gate.RequestLog.Enabled = pkgconfig.GetEnvBool("GATE_REQUEST_LOG_ENABLED", true)
	cfg.Gate.RequestLog.MaxEntries = pkgconfig.GetEnvInt("GATE_REQUEST_LOG_MAX", 1000)
	cfg.Gate.APIKey.SecretEnv = "GATE_API_SECRET"
	cfg.Gate.APIKey.Strict = pkgconfig.GetEnvBool("GATE_API_KEY_STRICT", false)
	cfg.Gate.Auth.Verifier = pkgconfig.GetEnvString("AUTH_VERIFIER", "jwt")
	cfg.Gate.Auth.JWTSecretEnv = "AUTH_JWT_SECRET"
	cfg.Gate.Auth.IdentityServiceURL = pkgconfig.GetEnvString("IDENTITY_SERVICE_URL", "")
	cfg.Gate.Auth.VerifyTimeout = Duration(pkgconfig.GetEnvDuration("AUTH_VERIFY_TIMEOUT", 5*time.Second))
	cfg.Gate.Auth.DefaultRole = "viewer"
	cfg.Gate.Routes = []Route{
		{Prefix: "/api/chat", Class: "chat", AuthRequired: true},
		{Prefix: "/api/search", Class: "search", AuthRequired: true},
		{Prefix: "/api/documents", Class: "document_write", AuthRequired: true},
		{Prefix: "/api/admin", Class: "default", AuthRequired: true, AdminOnly: true},
	}
	return cfg
}

// LoadGateConfig loads the gate configuration from a YAML file. The path is
// expected to come from a trusted source (CLI argument or environment), not
// user input.
func LoadGateConfig(path string) (*GateConfig, error) {
	// #nosec G304 -- path comes from trusted startup configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gate config: %w", err)
	}

	config := DefaultGateConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse gate config: %w", err)
	}

	if err := validateGateConfig(config); err != nil {
		return nil, fmt.Errorf("gate config validation failed: %w", err)
	}

	return config, nil
}

// validateGateConfig validates the loaded configuration fail-closed.
func validateGateConfig(config *GateConfig) error {
	if config.Gate.Block.MaxFailedAttempts <= 0 {
		return fmt.Errorf("block.max_failed_attempts must be positive")
	}
	if err := pkgconfig.ValidatePositiveDuration(config.Gate.Block.BlockDuration.Std()); err != nil {
		return fmt.Errorf("block.block_duration: %w", err)
	}
	if config.Gate.RequestLog.MaxEntries <= 0 {
		return fmt.Errorf("request_log.max_entries must be positive")
	}

	switch config.Gate.Auth.Verifier {
	case "jwt":
		if config.Gate.Auth.JWTSecretEnv == "" {
			return fmt.Errorf("auth.jwt_secret_env is required for the jwt verifier")
		}
	case "remote":
		if config.Gate.Auth.IdentityServiceURL == "" {
			return fmt.Errorf("auth.identity_service_url is required for the remote verifier")
		}
	default:
		return fmt.Errorf("auth.verifier must be \"jwt\" or \"remote\", got %q", config.Gate.Auth.Verifier)
	}

	// Sub-100ms timeouts reject every remote verification; anything past a
	// minute holds a request slot hostage.
	if err := pkgconfig.ValidateDurationRange(config.Gate.Auth.VerifyTimeout.Std(), 100*time.Millisecond, time.Minute); err != nil {
		return fmt.Errorf("auth.verify_timeout: %w", err)
	}

	seen := make(map[string]bool, len(config.Gate.Routes))
	for _, route := range config.Gate.Routes {
		if route.Prefix == "" || !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("route prefix %q must start with /", route.Prefix)
		}
		if seen[route.Prefix] {
			return fmt.Errorf("duplicate route prefix %q", route.Prefix)
		}
		seen[route.Prefix] = true
		switch route.Class {
		case "chat", "search", "document_write", "default":
		default:
			return fmt.Errorf("route %q has unknown class %q", route.Prefix, route.Class)
		}
	}

	// Longest prefix wins during matching.
	sort.SliceStable(config.Gate.Routes, func(i, j int) bool {
		return len(config.Gate.Routes[i].Prefix) > len(config.Gate.Routes[j].Prefix)
	})

	return nil
}

// RouteFor returns the gating policy for a request path using
// longest-prefix matching. Paths no route covers get the permissive
// default: class "default", no authentication requirement.
func (c *GateConfig) RouteFor(path string) Route {
	for _, route := range c.Gate.Routes {
		if path == route.Prefix || strings.HasPrefix(path, route.Prefix+"/") {
			return route
		}
	}
	return Route{Prefix: "/", Class: "default"}
}
