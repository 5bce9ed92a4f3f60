// Package auth implements bearer-token authentication for the gate.
//
// The package is a thin translation layer: token verification and role
// lookup are delegated to two narrow interfaces supplied at construction
// time, so the external identity service can be swapped for fakes in tests
// without touching pipeline logic.
package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Failure reasons returned in Result.FailureReason. These are the only
// authentication messages clients ever see; underlying verifier errors are
// never surfaced.
const (
	ReasonNoHeader           = "no authorization header"
	ReasonInvalidFormat      = "invalid format"
	ReasonNoToken            = "no token"
	ReasonInvalidToken       = "invalid token"
	ReasonVerificationFailed = "verification failed"
)

// Result is the outcome of one authentication attempt. It is constructed
// fresh per request, never persisted, and never carries the raw token.
type Result struct {
	// Authenticated reports whether the caller presented a valid credential.
	Authenticated bool

	// SubjectID identifies the authenticated caller. Empty on failure.
	SubjectID string

	// Role is the caller's resolved role. Empty on failure.
	Role string

	// FailureReason is one of the Reason* constants. Empty on success.
	FailureReason string
}

// Authenticator validates Authorization headers against an external identity
// capability.
type Authenticator struct {
	verifier TokenVerifier
	roles    RoleResolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator.
//
// timeout bounds each external verification call; when it expires the
// attempt resolves to an authentication failure rather than pending
// indefinitely. A non-positive timeout defaults to 5s.
func NewAuthenticator(verifier TokenVerifier, roles RoleResolver, timeout time.Duration, logger *slog.Logger) *Authenticator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		roles:    roles,
		timeout:  timeout,
		logger:   logger,
	}
}

// Authenticate validates a raw Authorization header value.
//
// Header shape is checked locally; the token itself goes to the injected
// verifier and, on success, the subject goes to the role resolver. Any error
// from either external call is logged internally and normalized to
// ReasonVerificationFailed: fail closed, and never leak the upstream error
// to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) Result {
	if authorization == "" {
		return failure(ReasonNoHeader)
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return failure(ReasonInvalidFormat)
	}

	token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	if token == "" {
		return failure(ReasonNoToken)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	subjectID, valid, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.Warn("token verification error",
			slog.String("error", err.Error()))
		return failure(ReasonVerificationFailed)
	}
	if !valid {
		return failure(ReasonInvalidToken)
	}

	role, err := a.roles.RoleOf(ctx, subjectID)
	if err != nil {
		a.logger.Warn("role resolution error",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()))
		return failure(ReasonVerificationFailed)
	}

	return Result{
		Authenticated: true,
		SubjectID:     subjectID,
		Role:          role,
	}
}

func failure(reason string) Result {
	return Result{Authenticated: false, FailureReason: reason}
}
