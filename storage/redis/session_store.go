package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NovuntFinance/authgate/storage"
)

// SessionStore implements the storage.Storage interface using Redis. It is
// meant for BFF/server-rendered deployments where several instances share
// the same user session blob.
type SessionStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
	id     string // Store identity, usually the user or device id
	ttl    time.Duration
}

// NewSessionStore creates a new [SessionStore] instance. A zero ttl keeps
// blobs until explicitly cleared.
func NewSessionStore(client *redis.Client, prefix, id string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		id:     id,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for this store's blob.
func (r *SessionStore) redisKey() string {
	return fmt.Sprintf("%s:session:%s", r.prefix, r.id)
}

// Load implements storage.Storage.
func (r *SessionStore) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.redisKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session blob from Redis: %w", err)
	}
	return data, nil
}

// Save implements storage.Storage.
func (r *SessionStore) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.redisKey(), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session blob in Redis: %w", err)
	}
	return nil
}

// Clear implements storage.Storage.
func (r *SessionStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.redisKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete session blob from Redis: %w", err)
	}
	return nil
}

var _ storage.Storage = (*SessionStore)(nil)
