package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	TS    string    `json:"ts"`
	Value []float64 `json:"value"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCacheWithClient(client, "test")
}

func TestServicesRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	mem := NewMemoryCache()
	defer mem.Close()

	for name, svc := range map[string]Service{
		"memory":  mem,
		"redis":   rc,
		"layered": NewLayeredCache(rc),
	} {
		t.Run(name, func(t *testing.T) {
			in := []point{{TS: "2024-01-01T00:00:00Z", Value: []float64{1.5, 2, 3}}}
			require.NoError(t, svc.Set(ctx, "predict:abc", in, time.Minute))

			var out []point
			require.NoError(t, svc.Get(ctx, "predict:abc", &out))
			assert.Equal(t, in, out)

			ok, err := svc.Exists(ctx, "predict:abc")
			require.NoError(t, err)
			assert.True(t, ok)

			assert.ErrorIs(t, svc.Get(ctx, "predict:missing", &out), ErrCacheMiss)

			require.NoError(t, svc.Set(ctx, "model:info", "x", time.Minute))
			require.NoError(t, svc.DeleteByPattern(ctx, BuildPattern("predict:")))
			assert.ErrorIs(t, svc.Get(ctx, "predict:abc", &out), ErrCacheMiss)

			var s string
			require.NoError(t, svc.Get(ctx, "model:info", &s))
			assert.Equal(t, "x", s)
		})
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rc := newRedis(t)

	require.NoError(t, rc.Set(ctx, "k", 1, time.Second))
	assert.True(t, mr.Exists("test:k"))
	mr.FastForward(2 * time.Second)

	var v int
	assert.ErrorIs(t, rc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCachePromotesFromRedis(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	lc := NewLayeredCache(rc)

	require.NoError(t, rc.Set(ctx, "k", point{TS: "t"}, time.Minute))
	var p point
	require.NoError(t, lc.Get(ctx, "k", &p))
	assert.Equal(t, "t", p.TS)

	ok, _ := lc.memCache.Exists(ctx, "k")
	assert.True(t, ok)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey([]byte("abc")), HashKey([]byte("abc")))
	assert.NotEqual(t, HashKey([]byte("abc")), HashKey([]byte("abd")))
	assert.Equal(t, "p:1:x", GenerateKeyWithParams("p", 1, "x"))
}
