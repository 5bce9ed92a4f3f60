package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks a bearer token against the identity service.
//
// Implementations must treat the call as potentially blocking I/O: honor the
// context, and never hold locks across it. valid=false with a nil error
// means the token was checked and rejected; a non-nil error means the check
// itself could not be completed.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (subjectID string, valid bool, err error)
}

// RoleResolver looks up the role for an authenticated subject.
type RoleResolver interface {
	RoleOf(ctx context.Context, subjectID string) (string, error)
}

// JWTVerifier verifies HS256-signed JWTs locally using a shared secret.
// This covers deployments where the identity-token issuing service signs
// with a secret the gate also holds, avoiding a network round trip per
// request.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier. The secret must be at least 32 bytes
// (256 bits) so HS256 retains its intended strength.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify parses and validates the token. The signing method is pinned to
// HS256; an attacker-chosen "alg" header is rejected before signature
// checking.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, bool, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", false, nil
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", false, nil
	}
	if exp, ok := claims["exp"].(float64); !ok || int64(exp) < time.Now().Unix() {
		return "", false, nil
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", false, nil
	}

	return sub, true, nil
}

// StaticRoleResolver resolves roles from a fixed map loaded at startup, with
// a default role for subjects the map does not know.
type StaticRoleResolver struct {
	roles       map[string]string
	defaultRole string
}

// NewStaticRoleResolver creates a StaticRoleResolver. An empty defaultRole
// falls back to RoleViewer.
func NewStaticRoleResolver(roles map[string]string, defaultRole string) *StaticRoleResolver {
	if defaultRole == "" {
		defaultRole = RoleViewer
	}
	if roles == nil {
		roles = map[string]string{}
	}
	return &StaticRoleResolver{roles: roles, defaultRole: defaultRole}
}

// RoleOf returns the configured role for the subject, or the default role.
func (r *StaticRoleResolver) RoleOf(ctx context.Context, subjectID string) (string, error) {
	if role, ok := r.roles[subjectID]; ok {
		return role, nil
	}
	return r.defaultRole, nil
}
