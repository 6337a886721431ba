package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a token string into a short fixed-size cache key, so
// raw credentials never sit in cache memory.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	hashedBytes := hasher.Sum(nil)
	return hex.EncodeToString(hashedBytes)
}
