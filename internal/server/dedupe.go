package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper suppresses duplicate webhook deliveries by claiming each
// update id in Redis with a TTL. Telegram redelivers updates it considers
// unacknowledged; a claimed id means the update was already dispatched.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a new RedisDeduper instance.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim returns true if this process is the first to see the update id.
func (d *RedisDeduper) Claim(ctx context.Context, updateID int) (bool, error) {
	key := fmt.Sprintf("webhook:update:%d", updateID)

	fresh, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim update id: %w", err)
	}

	return fresh, nil
}
