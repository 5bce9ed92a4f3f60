package auth

import "strings"

// Role constants define the user roles known to the gate. Roles come from
// the identity service's role lookup and drive per-route authorization.
const (
	// RoleAdmin has full access, including admin-only actions.
	RoleAdmin = "admin"
	// RoleEditor can read and write knowledge-base content.
	RoleEditor = "editor"
	// RoleViewer has read-only access.
	RoleViewer = "viewer"
	// RoleService is assigned to callers authenticated via X-API-Key.
	RoleService = "service"
)

// Permission defines the operations a role may perform: which HTTP methods,
// on which path patterns.
type Permission struct {
	// AllowedMethods lists the HTTP methods this role can use.
	AllowedMethods []string

	// AllowedPaths lists path patterns this role can access.
	// "/*" matches everything; a trailing "/*" matches the prefix and all
	// subpaths; anything else is an exact match.
	AllowedPaths []string
}

// RolePermissions maps each role to its permissions.
//
// OPTIONS is allowed for every role so CORS preflights are never rejected by
// authorization.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedPaths:   []string{"/*"},
	},
	RoleEditor: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedPaths: []string{
			"/api/chat",
			"/api/chat/*",
			"/api/search",
			"/api/search/*",
			"/api/documents",
			"/api/documents/*",
		},
	},
	RoleViewer: {
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedPaths: []string{
			"/api/search",
			"/api/search/*",
			"/api/documents",
			"/api/documents/*",
		},
	},
	RoleService: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedPaths:   []string{"/api/*"},
	},
}

// HasPermission checks whether a role may perform method on path.
// Unknown or empty roles are always denied.
func HasPermission(role, method, path string) bool {
	if role == "" {
		return false
	}

	perm, exists := RolePermissions[role]
	if !exists {
		return false
	}

	methodAllowed := false
	for _, m := range perm.AllowedMethods {
		if m == method {
			methodAllowed = true
			break
		}
	}
	if !methodAllowed {
		return false
	}

	return matchesPathPattern(path, perm.AllowedPaths)
}

// matchesPathPattern checks a path against the allowed patterns.
//
// "/api/documents/*" matches "/api/documents", "/api/documents/42" and
// deeper subpaths; "/api/documents" alone is an exact match only.
func matchesPathPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "/*" {
			return true
		}

		if strings.HasSuffix(pattern, "/*") {
			prefix := strings.TrimSuffix(pattern, "/*")
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}

		if path == pattern {
			return true
		}
	}
	return false
}
