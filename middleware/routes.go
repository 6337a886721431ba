package middleware

import "strings"

// RouteClass buckets a request path for the edge check.
type RouteClass int

const (
	ClassPublic RouteClass = iota
	ClassAuthOnly
	ClassAdmin
	ClassProtected
)

func (c RouteClass) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassAuthOnly:
		return "auth_only"
	case ClassAdmin:
		return "admin"
	case ClassProtected:
		return "protected"
	default:
		return "unknown"
	}
}

// Routes holds the prefix lists the middleware classifies against.
type Routes struct {
	Public    []string
	AuthOnly  []string
	Admin     []string
	Protected []string
}

// DefaultRoutes matches the platform's page layout.
func DefaultRoutes() Routes {
	return Routes{
		Public:    []string{"/", "/about", "/terms", "/privacy", "/health"},
		AuthOnly:  []string{"/login", "/signup", "/forgot-password", "/reset-password", "/verify-email"},
		Admin:     []string{"/admin"},
		Protected: []string{"/dashboard", "/wallet", "/staking", "/referrals", "/settings"},
	}
}

// Classify buckets path by prefix. Admin wins over protected; auth-only
// wins over public; an exact "/" only matches the public root.
func (r Routes) Classify(path string) RouteClass {
	if path == "" {
		path = "/"
	}

	for _, p := range r.Admin {
		if hasPathPrefix(path, p) {
			return ClassAdmin
		}
	}
	for _, p := range r.AuthOnly {
		if hasPathPrefix(path, p) {
			return ClassAuthOnly
		}
	}
	for _, p := range r.Protected {
		if hasPathPrefix(path, p) {
			return ClassProtected
		}
	}
	return ClassPublic
}

// hasPathPrefix matches whole path segments: /wallet matches /wallet and
// /wallet/deposits but not /wallets.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
