package domain

import "time"

// Claims are the access-token fields the client is allowed to look at.
// They are read without signature verification; verifying the token is the
// backend's job. A token that cannot be decoded is treated as expired.
// Claims are only ever produced by decoding a token, never serialized, so
// they carry no tags.
type Claims struct {
	Subject       string
	Role          string
	Is2FAVerified bool
	ExpiresAt     time.Time
}

// Expired reports whether the claims' expiry lies at or before now.
// Claims without an expiry are expired (fail closed).
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now)
}
