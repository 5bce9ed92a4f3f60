package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubVerifier returns canned verification results.
type stubVerifier struct {
	subjectID string
	valid     bool
	err       error
	delay     time.Duration
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (string, bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return s.subjectID, s.valid, s.err
}

// stubResolver returns canned roles.
type stubResolver struct {
	role string
	err  error
}

func (s *stubResolver) RoleOf(ctx context.Context, subjectID string) (string, error) {
	return s.role, s.err
}

// TestAuthenticator_HeaderParsing verifies the exact failure reason for each
// malformed Authorization header shape.
func TestAuthenticator_HeaderParsing(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{subjectID: "alice", valid: true},
		&stubResolver{role: RoleViewer},
		time.Second, nil,
	)

	testCases := []struct {
		name       string
		header     string
		wantReason string
	}{
		{"missing header", "", ReasonNoHeader},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ReasonInvalidFormat},
		{"lowercase bearer", "bearer abc123", ReasonInvalidFormat},
		{"no space after scheme", "Bearerabc123", ReasonInvalidFormat},
		{"empty token", "Bearer ", ReasonNoToken},
		{"whitespace token", "Bearer    ", ReasonNoToken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := a.Authenticate(context.Background(), tc.header)
			if result.Authenticated {
				t.Fatal("malformed header must not authenticate")
			}
			if result.FailureReason != tc.wantReason {
				t.Errorf("FailureReason = %q, want %q", result.FailureReason, tc.wantReason)
			}
		})
	}
}

// TestAuthenticator_ValidToken verifies the success path carries subject and
// role through.
func TestAuthenticator_ValidToken(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{subjectID: "alice", valid: true},
		&stubResolver{role: RoleAdmin},
		time.Second, nil,
	)

	result := a.Authenticate(context.Background(), "Bearer sometoken")
	if !result.Authenticated {
		t.Fatalf("valid token should authenticate, got reason %q", result.FailureReason)
	}
	if result.SubjectID != "alice" {
		t.Errorf("SubjectID = %q, want alice", result.SubjectID)
	}
	if result.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", result.Role, RoleAdmin)
	}
	if result.FailureReason != "" {
		t.Errorf("FailureReason = %q, want empty", result.FailureReason)
	}
}

// TestAuthenticator_RejectedToken verifies a checked-and-rejected token maps
// to ReasonInvalidToken.
func TestAuthenticator_RejectedToken(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{valid: false},
		&stubResolver{role: RoleViewer},
		time.Second, nil,
	)

	result := a.Authenticate(context.Background(), "Bearer expiredtoken")
	if result.Authenticated {
		t.Fatal("rejected token must not authenticate")
	}
	if result.FailureReason != ReasonInvalidToken {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, ReasonInvalidToken)
	}
}

// TestAuthenticator_VerifierErrorFailsClosed verifies that verifier errors
// deny the request and hide the underlying error from the caller.
func TestAuthenticator_VerifierErrorFailsClosed(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{err: errors.New("identity service: connection refused")},
		&stubResolver{role: RoleViewer},
		time.Second, nil,
	)

	result := a.Authenticate(context.Background(), "Bearer sometoken")
	if result.Authenticated {
		t.Fatal("verifier error must fail closed")
	}
	if result.FailureReason != ReasonVerificationFailed {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, ReasonVerificationFailed)
	}
}

// TestAuthenticator_TimeoutFailsClosed verifies that a slow verifier is cut
// off by the configured timeout instead of pending indefinitely.
func TestAuthenticator_TimeoutFailsClosed(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{subjectID: "alice", valid: true, delay: 5 * time.Second},
		&stubResolver{role: RoleViewer},
		50*time.Millisecond, nil,
	)

	start := time.Now()
	result := a.Authenticate(context.Background(), "Bearer sometoken")
	elapsed := time.Since(start)

	if result.Authenticated {
		t.Fatal("timed-out verification must fail closed")
	}
	if result.FailureReason != ReasonVerificationFailed {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, ReasonVerificationFailed)
	}
	if elapsed > time.Second {
		t.Errorf("Authenticate took %v, should have been cut off by the 50ms timeout", elapsed)
	}
}

// TestAuthenticator_RoleResolverErrorFailsClosed verifies that a failing
// role lookup denies the request even though the token itself was valid.
func TestAuthenticator_RoleResolverErrorFailsClosed(t *testing.T) {
	a := NewAuthenticator(
		&stubVerifier{subjectID: "alice", valid: true},
		&stubResolver{err: errors.New("role store down")},
		time.Second, nil,
	)

	result := a.Authenticate(context.Background(), "Bearer sometoken")
	if result.Authenticated {
		t.Fatal("role resolution failure must fail closed")
	}
	if result.FailureReason != ReasonVerificationFailed {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, ReasonVerificationFailed)
	}
}
