package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*LevelCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLevelCache(client, time.Minute), mr
}

func TestLevelCacheLoadsOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (Level, error) {
		loads++
		return Level{ProductID: 10, Qty: 42}, nil
	}

	level, err := cache.Get(ctx, 1, 10, load)
	require.NoError(t, err)
	require.InDelta(t, 42, level.Qty, 0.0001)

	level, err = cache.Get(ctx, 1, 10, load)
	require.NoError(t, err)
	require.InDelta(t, 42, level.Qty, 0.0001)
	require.Equal(t, 1, loads)
}

func TestLevelCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (Level, error) {
		loads++
		return Level{ProductID: 10, Qty: float64(loads)}, nil
	}

	_, err := cache.Get(ctx, 1, 10, load)
	require.NoError(t, err)

	cache.Invalidate(ctx, 1, 10)

	level, err := cache.Get(ctx, 1, 10, load)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	require.InDelta(t, 2, level.Qty, 0.0001)
}

func TestLevelCacheScopesByMerchant(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	a, err := cache.Get(ctx, 1, 10, func(ctx context.Context) (Level, error) {
		return Level{ProductID: 10, Qty: 5}, nil
	})
	require.NoError(t, err)
	require.InDelta(t, 5, a.Qty, 0.0001)

	b, err := cache.Get(ctx, 2, 10, func(ctx context.Context) (Level, error) {
		return Level{ProductID: 10, Qty: 9}, nil
	})
	require.NoError(t, err)
	require.InDelta(t, 9, b.Qty, 0.0001)
}
