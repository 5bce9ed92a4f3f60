package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// IsOriginAllowed reports whether the request origin may proceed
// cross-origin. An absent origin is a same-origin request and is always
// allowed.
//
// A disallowed origin is not a hard failure here: whether to reject the
// request outright is the gate pipeline's policy decision, not this
// component's.
func (p *CORSPolicy) IsOriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	return p.Validator.IsAllowed(origin)
}

// ResolveOrigin returns the origin value to echo in CORS headers: the
// request's own origin when allowed, otherwise the first configured origin
// as a safe default.
func (p *CORSPolicy) ResolveOrigin(origin string) string {
	if origin != "" && p.Validator.IsAllowed(origin) {
		return origin
	}
	allowed := p.Validator.AllowedOrigins()
	if len(allowed) > 0 {
		return allowed[0]
	}
	return ""
}

// Preflight writes the terminal response for an OPTIONS preflight request:
// 204 with the full CORS header set and no body.
func (p *CORSPolicy) Preflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	p.setHeaders(h, p.ResolveOrigin(r.Header.Get("Origin")))
	h.Set("Access-Control-Allow-Methods", strings.Join(p.AllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(p.AllowedHeaders, ", "))
	h.Set("Access-Control-Max-Age", strconv.Itoa(p.MaxAge))
	w.WriteHeader(http.StatusNoContent)
}

// Decorate attaches CORS headers to a non-preflight response before it
// leaves the pipeline.
func (p *CORSPolicy) Decorate(h http.Header, origin string) {
	p.setHeaders(h, p.ResolveOrigin(origin))
}

func (p *CORSPolicy) setHeaders(h http.Header, origin string) {
	if origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	if p.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
