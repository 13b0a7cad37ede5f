package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fishook/fishook/internal/backend"
)

// DefaultStatsTTL bounds how stale a served dashboard snapshot can be.
const DefaultStatsTTL = 5 * time.Minute

// StatsCache keeps analytics dashboard snapshots in Redis so repeated
// dashboard renders do not hammer the backend. A miss or any Redis failure
// falls through to the backend; the cache is never authoritative.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func statsKey(shop string) string {
	return fmt.Sprintf("fishook:dashboard:%s", shop)
}

// Get returns the cached snapshot for a shop, or (nil, nil) on a miss.
func (c *StatsCache) Get(ctx context.Context, shop string) (*backend.Dashboard, error) {
	raw, err := c.rdb.Get(ctx, statsKey(shop)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var d backend.Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal cached dashboard: %w", err)
	}
	return &d, nil
}

// Set stores a snapshot with the configured TTL.
func (c *StatsCache) Set(ctx context.Context, shop string, d *backend.Dashboard) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(shop), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
