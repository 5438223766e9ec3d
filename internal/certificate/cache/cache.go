// Package cache provides an optional Redis-backed cache for fingerprint
// verification results. Only the public projection of a result is ever
// cached: privacy-gated fields depend on the caller and must not be served
// from a shared cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
)

// VerificationCache caches verification results keyed by document hash.
// A nil *VerificationCache is valid and disables caching, so callers never
// branch on whether Redis is configured.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a cache over a connected Redis client. Pass nil to disable.
func New(client *redis.Client, ttl time.Duration) *VerificationCache {
	if client == nil {
		return nil
	}
	return &VerificationCache{client: client, ttl: ttl}
}

func key(hash domain.Hash) string {
	return "baseproof:verify:" + hash.String()
}

// Get returns the cached public verification result for the hash, or false
// on a miss. Redis failures degrade to a miss; verification must keep
// working when the cache does not.
func (c *VerificationCache) Get(ctx context.Context, hash domain.Hash) (models.VerificationResult, bool) {
	if c == nil {
		return models.VerificationResult{}, false
	}
	raw, err := c.client.Get(ctx, key(hash)).Bytes()
	if err != nil {
		return models.VerificationResult{}, false
	}
	var result models.VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.VerificationResult{}, false
	}
	return result, true
}

// Put stores the public verification result under the configured TTL.
func (c *VerificationCache) Put(ctx context.Context, hash domain.Hash, result models.VerificationResult) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal verification result: %w", err)
	}
	if err := c.client.Set(ctx, key(hash), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache verification result: %w", err)
	}
	return nil
}

// Invalidate drops the cached result after a mutation so a fresh lookup
// observes the new owner or revocation state.
func (c *VerificationCache) Invalidate(ctx context.Context, hash domain.Hash) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, key(hash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("invalidate verification result: %w", err)
	}
	return nil
}
