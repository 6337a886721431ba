// Package totp wraps TOTP secret handling for accounts that use an
// authenticator app, plus the recovery-code helpers that back it up.
package totp

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultRecoveryCodeLength is the length of generated recovery codes.
	DefaultRecoveryCodeLength = 10
	// DefaultNumRecoveryCodes is the number of recovery codes to generate.
	DefaultNumRecoveryCodes = 10
)

// GenerateSecret generates a new TOTP secret key for accountName. It
// returns the key and the otpauth:// URI to feed a QR generator.
func GenerateSecret(issuer, accountName string) (*otp.Key, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      30,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key, key.URL(), nil
}

// ValidateCode validates a 6-digit code against the base32 secret.
func ValidateCode(secret, passcode string) bool {
	return totp.Validate(passcode, strings.TrimSpace(secret))
}

// CurrentCode derives the code for the current time window. Used by the
// headless prompter for service clients that hold their own secret.
func CurrentCode(secret string) (string, error) {
	code, err := totp.GenerateCode(strings.TrimSpace(secret), nowFunc())
	if err != nil {
		return "", fmt.Errorf("failed to derive TOTP code: %w", err)
	}
	return code, nil
}

// GenerateRecoveryCodes generates a set of unique recovery codes,
// returning the plaintext codes (shown to the user once) and their bcrypt
// hashes (for storage).
func GenerateRecoveryCodes(count, length int) (plaintextCodes, hashedCodes []string, err error) {
	if count <= 0 {
		count = DefaultNumRecoveryCodes
	}
	if length <= 0 {
		length = DefaultRecoveryCodeLength
	}

	// Excludes easily confused characters (I, l, 1, O, 0).
	const charset = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	plaintextCodes = make([]string, count)
	hashedCodes = make([]string, count)
	seen := make(map[string]bool, count)

	for i := 0; i < count; i++ {
		for {
			b := make([]byte, length)
			if _, randErr := rand.Read(b); randErr != nil {
				return nil, nil, fmt.Errorf("failed to read random bytes for recovery code: %w", randErr)
			}
			for j := range b {
				b[j] = charset[int(b[j])%len(charset)]
			}
			code := string(b)
			if !seen[code] {
				plaintextCodes[i] = code
				seen[code] = true
				break
			}
		}

		hashed, hashErr := bcrypt.GenerateFromPassword([]byte(plaintextCodes[i]), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, nil, fmt.Errorf("failed to hash recovery code: %w", hashErr)
		}
		hashedCodes[i] = string(hashed)
	}
	return plaintextCodes, hashedCodes, nil
}

// VerifyRecoveryCode checks a plaintext recovery code against the stored
// hashes and returns the index of the match, or -1. A matched code must be
// invalidated by the caller.
func VerifyRecoveryCode(hashedCodes []string, providedCode string) (bool, int) {
	provided := []byte(providedCode)
	for i, stored := range hashedCodes {
		if bcrypt.CompareHashAndPassword([]byte(stored), provided) == nil {
			return true, i
		}
	}
	return false, -1
}
