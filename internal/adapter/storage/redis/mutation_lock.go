package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// MutationLock implements ports.MutationLock using Redis SET NX. The TTL
// bounds how long a crashed unit of work can block its vault.
type MutationLock struct {
	client *goredis.Client
	prefix string
}

// NewMutationLock creates a new Redis-backed mutation lock.
func NewMutationLock(client *goredis.Client) *MutationLock {
	return &MutationLock{
		client: client,
		prefix: "mutation:",
	}
}

// Acquire takes the per-vault lock. Returns false if another unit of work
// holds it.
func (l *MutationLock) Acquire(ctx context.Context, vaultID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+vaultID.String(), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis mutation lock acquire: %w", err)
	}
	return ok, nil
}

// Release frees the per-vault lock.
func (l *MutationLock) Release(ctx context.Context, vaultID uuid.UUID) error {
	if err := l.client.Del(ctx, l.prefix+vaultID.String()).Err(); err != nil {
		return fmt.Errorf("redis mutation lock release: %w", err)
	}
	return nil
}
