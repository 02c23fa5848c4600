package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores create idempotency keys in Redis so every instance
// rejects a replayed create.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(owner, key string) string {
	return "idem:" + owner + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, owner, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(owner, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the create may be retried.
func (r *RedisDeduper) Remove(ctx context.Context, owner, key string) error {
	return r.client.Del(ctx, r.key(owner, key)).Err()
}
