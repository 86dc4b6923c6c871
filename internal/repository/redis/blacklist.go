package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:jti:"

// TokenBlacklist implements repository.TokenBlacklist using Redis. Entries
// live in a shared keyspace so every service instance observes a revocation
// immediately, and Redis expires each entry at the token's natural expiry.
type TokenBlacklist struct {
	client *redis.Client
}

// NewTokenBlacklist creates a new Redis-backed token blacklist.
func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

// Add records a token identifier as revoked until its natural expiry. A jti
// that already expired is skipped since the token can no longer validate.
func (b *TokenBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := b.client.Set(ctx, keyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set blacklist entry: %w", err)
	}

	return nil
}

// Contains reports whether the token identifier has been revoked.
func (b *TokenBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis check blacklist entry: %w", err)
	}

	return n > 0, nil
}
