// Package dedup is a fast-path filter for redelivered webhook events.
// The database ledger stays authoritative; a cache miss or a cache outage
// only costs one extra database round trip.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyWebhookEvent is dedup:{scope}:{event_id}.
const KeyWebhookEvent = "dedup:%s:%s"

// Cache remembers processed event ids.
type Cache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// RedisCache stores one key per processed event with a TTL.
type RedisCache struct {
	rdb   redis.Cmdable
	scope string
	ttl   time.Duration
}

// NewRedisClient opens a client with short timeouts; dedup must never stall
// webhook handling.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewRedisCache(rdb redis.Cmdable, scope string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, scope: scope, ttl: ttl}
}

func (c *RedisCache) key(eventID string) string {
	return fmt.Sprintf(KeyWebhookEvent, c.scope, eventID)
}

func (c *RedisCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Mark(ctx context.Context, eventID string) error {
	if err := c.rdb.Set(ctx, c.key(eventID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Noop is used when Redis is disabled.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Noop) Mark(context.Context, string) error         { return nil }
