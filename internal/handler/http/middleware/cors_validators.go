package middleware

import (
	"net/url"
	"strings"
)

// OriginValidator validates the Origin header of cross-origin requests.
// Implementations must treat an empty origin as not allowed; absent-origin
// (same-origin) requests are handled by the policy before validation.
type OriginValidator interface {
	// IsAllowed reports whether the given origin may make cross-origin
	// requests.
	IsAllowed(origin string) bool

	// AllowedOrigins returns the configured origins (or patterns) for
	// logging and for picking the default preflight origin. The slice is a
	// defensive copy.
	AllowedOrigins() []string
}

// WhitelistValidator allows origins by exact match against a configured
// list. Origins are normalized (lowercased, trailing slash removed) at
// construction and at check time.
type WhitelistValidator struct {
	origins []string
}

// NewWhitelistValidator creates a WhitelistValidator from the given origins.
// Empty entries are dropped.
func NewWhitelistValidator(origins []string) *WhitelistValidator {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = normalizeOrigin(origin)
		if origin != "" {
			normalized = append(normalized, origin)
		}
	}
	return &WhitelistValidator{origins: normalized}
}

// IsAllowed reports whether origin exactly matches a configured origin.
func (v *WhitelistValidator) IsAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	for _, allowed := range v.origins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// AllowedOrigins returns a copy of the configured origins.
func (v *WhitelistValidator) AllowedOrigins() []string {
	out := make([]string, len(v.origins))
	copy(out, v.origins)
	return out
}

// SuffixValidator allows an origin when its host equals, or is a subdomain
// of, a configured origin's host, and the scheme matches.
//
// With "https://example.org" configured, "https://app.example.org" and
// "https://example.org" are allowed; "https://evilexample.org" is not. The
// suffix boundary is a full label, never a substring.
type SuffixValidator struct {
	origins []*url.URL
	raw     []string
}

// NewSuffixValidator creates a SuffixValidator. Entries that do not parse as
// URLs with a host are dropped.
func NewSuffixValidator(origins []string) *SuffixValidator {
	v := &SuffixValidator{}
	for _, origin := range origins {
		origin = normalizeOrigin(origin)
		if origin == "" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		v.origins = append(v.origins, u)
		v.raw = append(v.raw, origin)
	}
	return v
}

// IsAllowed reports whether origin's host is the configured host or one of
// its subdomains.
func (v *SuffixValidator) IsAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	for _, allowed := range v.origins {
		if u.Scheme != allowed.Scheme {
			continue
		}
		if u.Hostname() == allowed.Hostname() ||
			strings.HasSuffix(u.Hostname(), "."+allowed.Hostname()) {
			return true
		}
	}
	return false
}

// AllowedOrigins returns a copy of the configured origin patterns.
func (v *SuffixValidator) AllowedOrigins() []string {
	out := make([]string, len(v.raw))
	copy(out, v.raw)
	return out
}

// MultiValidator allows an origin when any member validator allows it.
type MultiValidator struct {
	validators []OriginValidator
}

// NewMultiValidator composes validators; order is preserved for
// AllowedOrigins.
func NewMultiValidator(validators ...OriginValidator) *MultiValidator {
	return &MultiValidator{validators: validators}
}

// IsAllowed reports whether any member validator allows the origin.
func (v *MultiValidator) IsAllowed(origin string) bool {
	for _, member := range v.validators {
		if member.IsAllowed(origin) {
			return true
		}
	}
	return false
}

// AllowedOrigins concatenates all members' origins.
func (v *MultiValidator) AllowedOrigins() []string {
	var out []string
	for _, member := range v.validators {
		out = append(out, member.AllowedOrigins()...)
	}
	return out
}

// normalizeOrigin lowercases an origin and strips surrounding whitespace and
// any trailing slash.
func normalizeOrigin(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	return strings.TrimSuffix(origin, "/")
}
