// Package pathutil normalizes request paths for use as metrics labels.
package pathutil

import (
	"regexp"
	"strings"
)

// pathPattern pairs a compiled route pattern with its normalized template.
type pathPattern struct {
	pattern  *regexp.Regexp
	template string
}

// pathPatterns lists the dynamic routes whose IDs must collapse into one
// label value. Evaluated in order, most specific first. Pre-compiled at
// initialization so a lookup stays cheap on the hot path.
var pathPatterns = []*pathPattern{
	{pattern: regexp.MustCompile(`^/api/documents/[^/]+/versions$`), template: "/api/documents/:id/versions"},
	{pattern: regexp.MustCompile(`^/api/documents/[^/]+$`), template: "/api/documents/:id"},
	{pattern: regexp.MustCompile(`^/api/chat/[^/]+$`), template: "/api/chat/:id"},
	{pattern: regexp.MustCompile(`^/api/admin/blocks/[^/]+$`), template: "/api/admin/blocks/:address"},
}

// NormalizePath collapses ID-bearing paths into templates so metrics label
// cardinality stays bounded. Static paths pass through unchanged, query
// parameters and trailing slashes are stripped first.
//
//	NormalizePath("/api/documents/42")   // "/api/documents/:id"
//	NormalizePath("/api/search")         // "/api/search"
//	NormalizePath("/api/documents/42/")  // "/api/documents/:id"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	for _, p := range pathPatterns {
		if p.pattern.MatchString(path) {
			return p.template
		}
	}
	return path
}
