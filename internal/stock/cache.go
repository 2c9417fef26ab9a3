package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LevelCache caches stock levels in Redis. Concurrent misses for the
// same product collapse into a single load via singleflight.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewLevelCache constructs the cache.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LevelCache{client: client, ttl: ttl}
}

func levelKey(merchantID, productID int64) string {
	return fmt.Sprintf("stock:level:%d:%d", merchantID, productID)
}

// Get returns the cached level or loads and stores it.
func (c *LevelCache) Get(ctx context.Context, merchantID, productID int64, load func(context.Context) (Level, error)) (Level, error) {
	key := levelKey(merchantID, productID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var level Level
		if err := json.Unmarshal(raw, &level); err == nil {
			return level, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		_ = c.client.Del(ctx, key).Err()
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		level, err := load(ctx)
		if err != nil {
			return Level{}, err
		}
		if data, err := json.Marshal(level); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return level, nil
	})
	if err != nil {
		return Level{}, err
	}
	return value.(Level), nil
}

// Invalidate drops the cached level after a delta lands.
func (c *LevelCache) Invalidate(ctx context.Context, merchantID, productID int64) {
	_ = c.client.Del(ctx, levelKey(merchantID, productID)).Err()
}
