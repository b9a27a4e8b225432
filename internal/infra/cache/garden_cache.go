// Package cache provides Redis-based caching for quick garden reads.
// The cache is never the source of truth; every mutating engine operation
// invalidates the member's entry.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/webrender/rphq-bot/internal/domain/garden"
)

// RedisClient is an interface for Redis operations.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// GardenCache provides fast access to garden snapshots keyed by
// (guild, user). Entries carry a TTL as a backstop; writes invalidate
// eagerly and the growth tick bumps an epoch that retires every key at once.
type GardenCache struct {
	client     RedisClient
	expiration time.Duration
	epoch      int64
}

// NewGardenCache creates a new garden cache instance.
func NewGardenCache(client RedisClient, expiration time.Duration) *GardenCache {
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}
	return &GardenCache{
		client:     client,
		expiration: expiration,
	}
}

// GetGarden retrieves a cached garden snapshot. A miss, a stale epoch or a
// cache error all report !ok and send the caller to the store.
func (c *GardenCache) GetGarden(ctx context.Context, guildID, userID string) (*garden.Garden, bool) {
	data, err := c.client.Get(ctx, c.gardenKey(guildID, userID))
	if err != nil {
		return nil, false
	}

	var g garden.Garden
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, false
	}
	return &g, true
}

// SetGarden caches a garden snapshot. Errors are dropped: the store remains
// authoritative.
func (c *GardenCache) SetGarden(ctx context.Context, guildID, userID string, g garden.Garden) {
	data, err := json.Marshal(g)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.gardenKey(guildID, userID), data, c.expiration)
}

// Invalidate removes one member's cached snapshot.
func (c *GardenCache) Invalidate(ctx context.Context, guildID, userID string) {
	_ = c.client.Del(ctx, c.gardenKey(guildID, userID))
}

// InvalidateAll retires every cached snapshot by moving to a new key epoch.
// Old entries expire on their own TTL.
func (c *GardenCache) InvalidateAll(ctx context.Context) {
	atomic.AddInt64(&c.epoch, 1)
}

// gardenKey generates the Redis key for one member's garden.
func (c *GardenCache) gardenKey(guildID, userID string) string {
	return fmt.Sprintf("garden:%d:%s:%s", atomic.LoadInt64(&c.epoch), guildID, userID)
}
