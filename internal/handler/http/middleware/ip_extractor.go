// Package middleware contains the gate's HTTP middleware: client address
// resolution, CORS policy enforcement, and the request-gating pipeline that
// fronts every route handler.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"
)

// IPExtractor extracts the client IP address from an HTTP request. It
// abstracts the choice between secure RemoteAddr extraction (default) and
// header-based extraction behind trusted reverse proxies (opt-in).
type IPExtractor interface {
	// ExtractIP returns the client IP address for the request.
	ExtractIP(r *http.Request) (string, error)
}

// RemoteAddrExtractor extracts the client IP from the request's RemoteAddr.
// This is the default and most secure strategy: the TCP connection address
// cannot be spoofed by the client.
type RemoteAddrExtractor struct{}

// ExtractIP strips the port from r.RemoteAddr and returns the IP.
// Handles IPv4 and IPv6 ("[2001:db8::1]:8080" → "2001:db8::1").
func (e *RemoteAddrExtractor) ExtractIP(r *http.Request) (string, error) {
	return extractIPFromAddr(r.RemoteAddr)
}

// TrustedProxyConfig holds configuration for validating trusted reverse
// proxies. When enabled, forwarded-for headers are honored only for
// connections coming from the listed CIDR ranges.
type TrustedProxyConfig struct {
	// Enabled turns header-based extraction on. When false all headers are
	// ignored.
	Enabled bool

	// AllowedCIDRs lists trusted proxy ranges. Single IPs are stored as /32
	// or /128 prefixes.
	AllowedCIDRs []netip.Prefix
}

// IsTrusted checks whether the given RemoteAddr belongs to a trusted proxy.
func (c *TrustedProxyConfig) IsTrusted(remoteAddr string) bool {
	ip, err := extractIPFromAddr(remoteAddr)
	if err != nil {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range c.AllowedCIDRs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// LoadTrustedProxyConfig loads trusted proxy configuration from environment
// variables.
//
// Environment variables:
//   - RATE_LIMIT_TRUST_PROXY: "true" to enable proxy trust (default: false)
//   - RATE_LIMIT_TRUSTED_PROXIES: comma-separated IPs or CIDR ranges
//
// Fail-closed: enabling proxy trust with an empty or invalid proxy list is a
// startup error, not a silent fallback.
func LoadTrustedProxyConfig() (*TrustedProxyConfig, error) {
	enabled := os.Getenv("RATE_LIMIT_TRUST_PROXY") == "true"

	config := &TrustedProxyConfig{
		Enabled:      enabled,
		AllowedCIDRs: []netip.Prefix{},
	}

	if !enabled {
		return config, nil
	}

	proxiesStr := strings.TrimSpace(os.Getenv("RATE_LIMIT_TRUSTED_PROXIES"))
	if proxiesStr == "" {
		return nil, fmt.Errorf("RATE_LIMIT_TRUST_PROXY is enabled but RATE_LIMIT_TRUSTED_PROXIES is empty")
	}

	for _, proxyStr := range strings.Split(proxiesStr, ",") {
		proxyStr = strings.TrimSpace(proxyStr)
		if proxyStr == "" {
			continue
		}

		prefix, err := netip.ParsePrefix(proxyStr)
		if err != nil {
			ip, ipErr := netip.ParseAddr(proxyStr)
			if ipErr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR %q: must be a valid IP address or CIDR notation", proxyStr)
			}
			if ip.Is4() {
				prefix = netip.PrefixFrom(ip, 32)
			} else {
				prefix = netip.PrefixFrom(ip, 128)
			}
		}

		config.AllowedCIDRs = append(config.AllowedCIDRs, prefix)
	}

	if len(config.AllowedCIDRs) == 0 {
		return nil, fmt.Errorf("RATE_LIMIT_TRUST_PROXY is enabled but no valid proxies found in RATE_LIMIT_TRUSTED_PROXIES")
	}

	return config, nil
}

// TrustedProxyExtractor extracts the client IP from X-Forwarded-For or
// X-Real-IP, but only when the request arrives from a trusted proxy.
// Untrusted sources fall back to RemoteAddr, which defeats block/limit
// bypass attacks via spoofed forwarding headers.
type TrustedProxyExtractor struct {
	config TrustedProxyConfig
}

// NewTrustedProxyExtractor creates a TrustedProxyExtractor.
func NewTrustedProxyExtractor(config TrustedProxyConfig) *TrustedProxyExtractor {
	return &TrustedProxyExtractor{config: config}
}

// ExtractIP resolves the client IP.
//
// Priority for trusted proxies: first X-Forwarded-For entry, then X-Real-IP,
// then RemoteAddr. Untrusted sources always resolve to RemoteAddr, and any
// forwarding headers they present are logged as spoofing attempts.
func (e *TrustedProxyExtractor) ExtractIP(r *http.Request) (string, error) {
	if !e.config.Enabled {
		return extractIPFromAddr(r.RemoteAddr)
	}

	if !e.config.IsTrusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			slog.Warn("untrusted source attempting to set X-Forwarded-For",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("x_forwarded_for", xff),
			)
		}
		return extractIPFromAddr(r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip, nil
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String(), nil
		}
	}

	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr extracts the IP from a "host:port" or bare "IP" string.
func extractIPFromAddr(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// No port; try parsing the whole string as an IP.
		trimmed := strings.TrimPrefix(strings.TrimSuffix(addr, "]"), "[")
		if ip := net.ParseIP(trimmed); ip != nil {
			return ip.String(), nil
		}
		return "", fmt.Errorf("invalid address %q", addr)
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	return "", fmt.Errorf("invalid IP in address %q", addr)
}

// parseFirstIP returns the first valid IP from a comma-separated
// X-Forwarded-For value, or "" if none parses.
func parseFirstIP(xff string) string {
	for _, part := range strings.Split(xff, ",") {
		candidate := strings.TrimSpace(part)
		if ip := net.ParseIP(candidate); ip != nil {
			return ip.String()
		}
	}
	return ""
}
