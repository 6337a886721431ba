// Package cache provides a small TTL cache for decoded access-token
// claims, so the edge middleware does not re-decode the same cookie on
// every request.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/NovuntFinance/authgate/domain"
)

// ClaimsCache caches decoded claims keyed by token hash. Entries expire
// with the token itself.
type ClaimsCache struct {
	cache      *ttlcache.Cache[string, *domain.Claims]
	defaultTTL time.Duration
}

// NewClaimsCache creates a claims cache. defaultTTL caps how long an entry
// may live regardless of the token's own expiry.
func NewClaimsCache(defaultTTL time.Duration) *ClaimsCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Claims](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.Claims](),
	)

	// Start the cleanup process
	go cache.Start()

	return &ClaimsCache{cache: cache, defaultTTL: defaultTTL}
}

// Get returns the cached claims for token, if present and not expired.
func (c *ClaimsCache) Get(token string) (*domain.Claims, bool) {
	item := c.cache.Get(HashToken(token))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set caches claims for token until the earlier of the token's expiry and
// the cache's default TTL.
func (c *ClaimsCache) Set(token string, claims *domain.Claims) {
	ttl := c.defaultTTL
	if claims != nil && !claims.ExpiresAt.IsZero() {
		if until := time.Until(claims.ExpiresAt); until > 0 && until < ttl {
			ttl = until
		}
	}
	c.cache.Set(HashToken(token), claims, ttl)
}

// Len counts the cached entries.
func (c *ClaimsCache) Len() int {
	return c.cache.Len()
}

// Close stops the cleanup goroutine.
func (c *ClaimsCache) Close() {
	c.cache.Stop()
}
