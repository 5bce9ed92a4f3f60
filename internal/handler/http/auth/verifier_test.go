package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// TestNewJWTVerifier_SecretLength verifies the 256-bit minimum.
func TestNewJWTVerifier_SecretLength(t *testing.T) {
	if _, err := NewJWTVerifier([]byte("short")); err == nil {
		t.Error("short secret must be rejected")
	}
	if _, err := NewJWTVerifier(testSecret); err != nil {
		t.Errorf("32-byte secret should be accepted: %v", err)
	}
}

// TestJWTVerifier_Verify covers the accept and reject paths. Note that a
// bad token is a rejection (valid=false, nil error), never an error: only
// infrastructure failures are errors, and local parsing has none.
func TestJWTVerifier_Verify(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	now := time.Now()

	testCases := []struct {
		name        string
		token       string
		wantSubject string
		wantValid   bool
	}{
		{
			"valid token",
			signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()}),
			"alice", true,
		},
		{
			"expired token",
			signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": now.Add(-time.Hour).Unix()}),
			"", false,
		},
		{
			"missing exp",
			signToken(t, testSecret, jwt.MapClaims{"sub": "alice"}),
			"", false,
		},
		{
			"missing sub",
			signToken(t, testSecret, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}),
			"", false,
		},
		{
			"wrong secret",
			signToken(t, []byte("ffffffffffffffffffffffffffffffff"), jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()}),
			"", false,
		},
		{
			"garbage",
			"not.a.jwt",
			"", false,
		},
		{
			"alg none",
			"eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJhbGljZSJ9.",
			"", false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			subject, valid, err := verifier.Verify(context.Background(), tc.token)
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			if valid != tc.wantValid {
				t.Errorf("valid = %v, want %v", valid, tc.wantValid)
			}
			if subject != tc.wantSubject {
				t.Errorf("subject = %q, want %q", subject, tc.wantSubject)
			}
		})
	}
}

// TestStaticRoleResolver verifies map lookup and the default role fallback.
func TestStaticRoleResolver(t *testing.T) {
	resolver := NewStaticRoleResolver(map[string]string{
		"alice": RoleAdmin,
		"bob":   RoleEditor,
	}, RoleViewer)

	testCases := []struct {
		subject string
		want    string
	}{
		{"alice", RoleAdmin},
		{"bob", RoleEditor},
		{"mallory", RoleViewer},
	}

	for _, tc := range testCases {
		role, err := resolver.RoleOf(context.Background(), tc.subject)
		if err != nil {
			t.Fatalf("RoleOf(%q) returned error: %v", tc.subject, err)
		}
		if role != tc.want {
			t.Errorf("RoleOf(%q) = %q, want %q", tc.subject, role, tc.want)
		}
	}
}

// TestStaticRoleResolver_EmptyDefault verifies the viewer fallback.
func TestStaticRoleResolver_EmptyDefault(t *testing.T) {
	resolver := NewStaticRoleResolver(nil, "")
	role, err := resolver.RoleOf(context.Background(), "anyone")
	if err != nil {
		t.Fatalf("RoleOf returned error: %v", err)
	}
	if role != RoleViewer {
		t.Errorf("RoleOf = %q, want %q", role, RoleViewer)
	}
}
