package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReceiptCache implements ports.ReceiptCache using Redis: the fast dedup
// path in front of the durable receipt_logs table.
type ReceiptCache struct {
	client *goredis.Client
	prefix string
}

// NewReceiptCache creates a new Redis-backed receipt cache.
func NewReceiptCache(client *goredis.Client) *ReceiptCache {
	return &ReceiptCache{
		client: client,
		prefix: "receipt:",
	}
}

// Get retrieves a cached receipt by its vault-scoped key.
// Returns nil, nil if the key does not exist.
func (c *ReceiptCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis receipt get: %w", err)
	}
	return val, nil
}

// Set stores an applied receipt with TTL.
func (c *ReceiptCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis receipt set: %w", err)
	}
	return nil
}
