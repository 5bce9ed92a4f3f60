package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// TestLoadGateConfig verifies a full YAML policy round-trips.
func TestLoadGateConfig(t *testing.T) {
	path := writeConfigFile(t, `
gate:
  block:
    max_failed_attempts: 5
    block_duration: 10m
  request_log:
    enabled: false
    max_entries: 200
  api_key:
    secret_env: GATE_API_SECRET
    strict: true
  auth:
    verifier: jwt
    jwt_secret_env: AUTH_JWT_SECRET
    verify_timeout: 3s
    default_role: viewer
    roles:
      alice: admin
  routes:
    - prefix: /api/chat
      class: chat
      auth_required: true
    - prefix: /api/admin
      class: default
      auth_required: true
      admin_only: true
`)

	cfg, err := LoadGateConfig(path)
	if err != nil {
		t.Fatalf("LoadGateConfig returned error: %v", err)
	}

	if cfg.Gate.Block.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts = %d, want 5", cfg.Gate.Block.MaxFailedAttempts)
	}
	if cfg.Gate.Block.BlockDuration.Std() != 10*time.Minute {
		t.Errorf("BlockDuration = %v, want 10m", cfg.Gate.Block.BlockDuration)
	}
	if cfg.Gate.RequestLog.Enabled {
		t.Error("RequestLog.Enabled should be false")
	}
	if cfg.Gate.RequestLog.MaxEntries != 200 {
		t.Errorf("MaxEntries = %d, want 200", cfg.Gate.RequestLog.MaxEntries)
	}
	if !cfg.Gate.APIKey.Strict {
		t.Error("APIKey.Strict should be true")
	}
	if cfg.Gate.Auth.VerifyTimeout.Std() != 3*time.Second {
		t.Errorf("VerifyTimeout = %v, want 3s", cfg.Gate.Auth.VerifyTimeout)
	}
	if cfg.Gate.Auth.Roles["alice"] != "admin" {
		t.Errorf("Roles[alice] = %q, want admin", cfg.Gate.Auth.Roles["alice"])
	}
	if len(cfg.Gate.Routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(cfg.Gate.Routes))
	}
}

// TestLoadGateConfig_Validation verifies fail-closed policy validation.
func TestLoadGateConfig_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{
			"zero failed attempts",
			"gate:\n  block:\n    max_failed_attempts: 0\n",
		},
		{
			"negative block duration",
			"gate:\n  block:\n    block_duration: -5m\n",
		},
		{
			"unknown verifier",
			"gate:\n  auth:\n    verifier: ldap\n",
		},
		{
			"remote without url",
			"gate:\n  auth:\n    verifier: remote\n    identity_service_url: \"\"\n",
		},
		{
			"verify timeout below range",
			"gate:\n  auth:\n    verify_timeout: 10ms\n",
		},
		{
			"verify timeout above range",
			"gate:\n  auth:\n    verify_timeout: 5m\n",
		},
		{
			"route without leading slash",
			"gate:\n  routes:\n    - prefix: api/chat\n      class: chat\n",
		},
		{
			"unknown route class",
			"gate:\n  routes:\n    - prefix: /api/chat\n      class: streaming\n",
		},
		{
			"duplicate prefix",
			"gate:\n  routes:\n    - prefix: /api/chat\n      class: chat\n    - prefix: /api/chat\n      class: default\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.content)
			if _, err := LoadGateConfig(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

// TestLoadGateConfig_MissingFile verifies a missing file is an error.
func TestLoadGateConfig_MissingFile(t *testing.T) {
	if _, err := LoadGateConfig("/nonexistent/gate.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

// TestGateConfig_RouteFor verifies longest-prefix route matching.
func TestGateConfig_RouteFor(t *testing.T) {
	path := writeConfigFile(t, `
gate:
  routes:
    - prefix: /api
      class: default
      auth_required: true
    - prefix: /api/documents
      class: document_write
      auth_required: true
    - prefix: /api/documents/public
      class: document_write
      auth_required: false
`)
	cfg, err := LoadGateConfig(path)
	if err != nil {
		t.Fatalf("LoadGateConfig returned error: %v", err)
	}

	testCases := []struct {
		name         string
		path         string
		wantPrefix   string
		authRequired bool
	}{
		{"longest prefix wins", "/api/documents/public/readme", "/api/documents/public", false},
		{"middle prefix", "/api/documents/42", "/api/documents", true},
		{"exact match", "/api/documents", "/api/documents", true},
		{"short prefix", "/api/other", "/api", true},
		{"no slash boundary bleed", "/api/documentsextra", "/api", true},
		{"uncovered path gets permissive default", "/healthz", "/", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			route := cfg.RouteFor(tc.path)
			if route.Prefix != tc.wantPrefix {
				t.Errorf("RouteFor(%q).Prefix = %q, want %q", tc.path, route.Prefix, tc.wantPrefix)
			}
			if route.AuthRequired != tc.authRequired {
				t.Errorf("RouteFor(%q).AuthRequired = %v, want %v", tc.path, route.AuthRequired, tc.authRequired)
			}
		})
	}
}

// TestDefaultGateConfig verifies the built-in policy and env overrides.
func TestDefaultGateConfig(t *testing.T) {
	t.Setenv("GATE_BLOCK_MAX_FAILURES", "7")
	t.Setenv("GATE_BLOCK_DURATION", "20m")

	cfg := DefaultGateConfig()

	if cfg.Gate.Block.MaxFailedAttempts != 7 {
		t.Errorf("MaxFailedAttempts = %d, want 7", cfg.Gate.Block.MaxFailedAttempts)
	}
	if cfg.Gate.Block.BlockDuration.Std() != 20*time.Minute {
		t.Errorf("BlockDuration = %v, want 20m", cfg.Gate.Block.BlockDuration)
	}
	if cfg.Gate.RequestLog.MaxEntries != 1000 {
		t.Errorf("MaxEntries = %d, want 1000", cfg.Gate.RequestLog.MaxEntries)
	}

	route := cfg.RouteFor("/api/chat/123")
	if route.Class != "chat" || !route.AuthRequired {
		t.Errorf("RouteFor(/api/chat/123) = %+v, want chat class with auth", route)
	}
}
