package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisValueListCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisValueListCacheWithClient(client, WithDefaultTTL(time.Minute)), mr
}

// exerciseValueListCache runs the behaviour both implementations share
func exerciseValueListCache(t *testing.T, c taxonomy.ValueListCache) {
	ctx := context.Background()
	account := uuid.New()
	other := uuid.New()

	_, ok, err := c.Get(ctx, account, "color")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, account, "color", []string{"red", "blue"}, 0))
	require.NoError(t, c.Set(ctx, account, "size", nil, 0))
	require.NoError(t, c.Set(ctx, other, "color", []string{"green"}, 0))

	values, ok, err := c.Get(ctx, account, "color")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"red", "blue"}, values)

	values, ok, err = c.Get(ctx, account, "size")
	require.NoError(t, err)
	assert.True(t, ok, "an empty list is still a hit")
	assert.Empty(t, values)

	require.NoError(t, c.InvalidateAccount(ctx, account))

	_, ok, err = c.Get(ctx, account, "color")
	require.NoError(t, err)
	assert.False(t, ok)

	values, ok, err = c.Get(ctx, other, "color")
	require.NoError(t, err)
	assert.True(t, ok, "other accounts keep their entries")
	assert.Equal(t, []string{"green"}, values)
}

func TestRedisValueListCache(t *testing.T) {
	c, _ := newRedisCache(t)
	exerciseValueListCache(t, c)
}

func TestInMemoryValueListCache(t *testing.T) {
	c := NewInMemoryValueListCache(WithInMemoryTTL(time.Minute))
	defer c.Close()
	exerciseValueListCache(t, c)

	hits, misses := c.GetStats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(2), misses)
}

func TestRedisValueListCache_TTL(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	account := uuid.New()

	require.NoError(t, c.Set(ctx, account, "color", []string{"red"}, 0))
	assert.Equal(t, time.Minute, mr.TTL(valueListKey(account, "color")))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, account, "color")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisValueListCache_CorruptedEntry(t *testing.T) {
	c, mr := newRedisCache(t)
	account := uuid.New()
	key := valueListKey(account, "color")
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok, err := c.Get(context.Background(), account, "color")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestRedisValueListCache_InvalidateManyKeys(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	account := uuid.New()

	for i := range 250 {
		require.NoError(t, c.Set(ctx, account, "attr-"+strconv.Itoa(i), []string{"x"}, 0))
	}
	require.NoError(t, c.InvalidateAccount(ctx, account))
	assert.Empty(t, mr.Keys())
}

func TestInMemoryValueListCache_Expiry(t *testing.T) {
	c := NewInMemoryValueListCache()
	defer c.Close()
	ctx := context.Background()
	account := uuid.New()

	require.NoError(t, c.Set(ctx, account, "color", []string{"red"}, time.Millisecond))
	c.doCleanup(time.Now().Add(time.Second))
	assert.Zero(t, c.Count())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestNewValueListCache(t *testing.T) {
	t.Run("disabled uses memory", func(t *testing.T) {
		c, err := NewValueListCache(config.RedisConfig{Enabled: false})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryValueListCache{}, c)
	})

	t.Run("reachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		c, err := NewValueListCache(config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &RedisValueListCache{}, c)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, _ := strconv.Atoi(mr.Port())
		mr.Close()

		c, err := NewValueListCache(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: port})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryValueListCache{}, c)

		_, err = NewValueListCache(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: port},
			WithInMemoryFallback(false))
		assert.Error(t, err)
	})
}
