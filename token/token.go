// Package token decodes access-token claims without verifying signatures.
//
// Both the session store and the edge middleware depend on this package so
// the expiry check cannot drift between the two execution contexts. It must
// stay free of storage and network dependencies.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NovuntFinance/authgate/domain"
)

type rawClaims struct {
	jwt.RegisteredClaims
	Role          string `json:"role,omitempty"`
	Is2FAVerified bool   `json:"is2FAVerified"`
}

var parser = jwt.NewParser()

// Decode extracts the claims from a compact JWT without checking its
// signature. Malformed tokens (wrong segment count, bad base64url, bad
// JSON) return an error.
func Decode(raw string) (*domain.Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token")
	}

	var rc rawClaims
	if _, _, err := parser.ParseUnverified(raw, &rc); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", err)
	}

	claims := &domain.Claims{
		Subject:       rc.Subject,
		Role:          rc.Role,
		Is2FAVerified: rc.Is2FAVerified,
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}

	return claims, nil
}

// IsExpired reports whether the token's exp claim lies at or before now.
// Tokens that fail to decode or carry no exp claim count as expired.
func IsExpired(raw string, now time.Time) bool {
	claims, err := Decode(raw)
	if err != nil {
		return true
	}
	return claims.Expired(now)
}

// Is2FAVerified reports whether the token's is2FAVerified claim is set.
// Undecodable tokens report false.
func Is2FAVerified(raw string) bool {
	claims, err := Decode(raw)
	if err != nil {
		return false
	}
	return claims.Is2FAVerified
}
