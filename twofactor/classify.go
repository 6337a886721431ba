package twofactor

import (
	"net/url"
	"strings"
)

// DefaultSensitivePrefixes are the read endpoints gated even though they
// do not mutate anything. Matched against the normalized path.
var DefaultSensitivePrefixes = []string{
	"/admin/activity-logs",
	"/dashboard/security",
	"/users/security",
	"/security",
}

// sensitiveKeywords gate any read whose path mentions them. The substring
// match is deliberately broad and can over-classify (a hypothetical
// /dashboard/activity-feed would be gated); tightening it would change
// which endpoints prompt, so the heuristic is kept as-is.
var sensitiveKeywords = []string{"security", "activity"}

var mutatingMethods = map[string]struct{}{
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
}

// Classifier decides which requests need a step-up code.
type Classifier struct {
	prefixes []string
}

// NewClassifier builds a classifier with custom sensitive prefixes; nil
// keeps the defaults.
func NewClassifier(prefixes []string) *Classifier {
	if prefixes == nil {
		prefixes = DefaultSensitivePrefixes
	}
	return &Classifier{prefixes: prefixes}
}

// RequiresStepUp reports whether a request with the given method and URL
// must carry a two-factor code. Mutating verbs always do. Reads do only
// when the normalized path (query and fragment stripped, lowercased)
// matches a sensitive prefix or contains a security/activity segment.
func (c *Classifier) RequiresStepUp(method, rawURL string) bool {
	if _, ok := mutatingMethods[strings.ToUpper(method)]; ok {
		return true
	}

	path := normalizePath(rawURL)
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	return false
}

// RequiresStepUp applies the default classifier.
func RequiresStepUp(method, rawURL string) bool {
	return defaultClassifier.RequiresStepUp(method, rawURL)
}

var defaultClassifier = NewClassifier(nil)

// normalizePath strips query and fragment and lowercases the path. A URL
// that does not parse is normalized by hand rather than rejected, so the
// classifier stays total.
func normalizePath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return strings.ToLower(u.Path)
	}
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.ToLower(path)
}
