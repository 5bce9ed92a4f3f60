package auth

import (
	"crypto/subtle"
	"log/slog"
)

// APIKeyValidator validates the X-API-Key header used by service-to-service
// callers.
//
// When no secret is configured, validation is skipped and every key is
// accepted, the historical open-by-default behavior. That default is
// deliberately preserved but loud: construction logs a warning, and a strict
// mode can invert it so an unconfigured secret rejects all API-key callers.
type APIKeyValidator struct {
	secret []byte
	strict bool
}

// NewAPIKeyValidator creates an APIKeyValidator.
func NewAPIKeyValidator(secret string, strict bool, logger *slog.Logger) *APIKeyValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if secret == "" && !strict {
		logger.Warn("no API secret configured: X-API-Key validation is disabled (open by default)")
	}
	return &APIKeyValidator{
		secret: []byte(secret),
		strict: strict,
	}
}

// Enabled reports whether a secret is configured.
func (v *APIKeyValidator) Enabled() bool {
	return len(v.secret) > 0
}

// Validate checks a presented key. Comparison is constant-time to avoid
// leaking the secret through timing.
func (v *APIKeyValidator) Validate(key string) bool {
	if len(v.secret) == 0 {
		return !v.strict
	}
	return subtle.ConstantTimeCompare([]byte(key), v.secret) == 1
}
