package middleware

import "testing"

// TestWhitelistValidator_IsAllowed tests exact origin matching.
func TestWhitelistValidator_IsAllowed(t *testing.T) {
	validator := NewWhitelistValidator([]string{
		"http://localhost:3000",
		"https://app.example.org",
	})

	testCases := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"allowed localhost", "http://localhost:3000", true},
		{"allowed https", "https://app.example.org", true},
		{"disallowed origin", "https://malicious.example.net", false},
		{"subdomain is not an exact match", "https://sub.app.example.org", false},
		{"scheme mismatch", "http://app.example.org", false},
		{"port mismatch", "http://localhost:3001", false},
		{"empty origin", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validator.IsAllowed(tc.origin); got != tc.expected {
				t.Errorf("IsAllowed(%q) = %v, want %v", tc.origin, got, tc.expected)
			}
		})
	}
}

// TestWhitelistValidator_Normalization tests case and trailing-slash
// normalization at check time.
func TestWhitelistValidator_Normalization(t *testing.T) {
	validator := NewWhitelistValidator([]string{"https://app.example.org"})

	testCases := []struct {
		name   string
		origin string
	}{
		{"uppercase scheme", "HTTPS://app.example.org"},
		{"uppercase host", "https://APP.EXAMPLE.ORG"},
		{"trailing slash", "https://app.example.org/"},
		{"surrounding whitespace", "  https://app.example.org  "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !validator.IsAllowed(tc.origin) {
				t.Errorf("IsAllowed(%q) = false, want true after normalization", tc.origin)
			}
		})
	}
}

// TestSuffixValidator_IsAllowed tests subdomain-suffix matching with full
// label boundaries.
func TestSuffixValidator_IsAllowed(t *testing.T) {
	validator := NewSuffixValidator([]string{"https://example.org"})

	testCases := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"apex host", "https://example.org", true},
		{"subdomain", "https://app.example.org", true},
		{"deep subdomain", "https://a.b.example.org", true},
		{"suffix without label boundary", "https://evilexample.org", false},
		{"different host", "https://example.net", false},
		{"scheme mismatch", "http://app.example.org", false},
		{"empty origin", "", false},
		{"garbage origin", "not a url", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validator.IsAllowed(tc.origin); got != tc.expected {
				t.Errorf("IsAllowed(%q) = %v, want %v", tc.origin, got, tc.expected)
			}
		})
	}
}

// TestMultiValidator_IsAllowed tests that composition is an OR.
func TestMultiValidator_IsAllowed(t *testing.T) {
	validator := NewMultiValidator(
		NewWhitelistValidator([]string{"http://localhost:3000"}),
		NewSuffixValidator([]string{"https://example.org"}),
	)

	testCases := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"matches first member", "http://localhost:3000", true},
		{"matches second member", "https://app.example.org", true},
		{"matches neither", "https://malicious.example.net", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validator.IsAllowed(tc.origin); got != tc.expected {
				t.Errorf("IsAllowed(%q) = %v, want %v", tc.origin, got, tc.expected)
			}
		})
	}

	origins := validator.AllowedOrigins()
	if len(origins) != 2 {
		t.Errorf("AllowedOrigins returned %d entries, want 2", len(origins))
	}
}
