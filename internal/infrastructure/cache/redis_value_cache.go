package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanBatchSize = 100
	valueListKeyPrefix   = "taxonomy:values:"
)

// RedisValueListCache implements taxonomy.ValueListCache using Redis
type RedisValueListCache struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	ttl        time.Duration
	logger     *zap.Logger
}

// RedisValueListCacheOption is a functional option for configuring the cache
type RedisValueListCacheOption func(*RedisValueListCache)

// WithDefaultTTL sets the TTL used when Set is called with ttl 0
func WithDefaultTTL(ttl time.Duration) RedisValueListCacheOption {
	return func(c *RedisValueListCache) {
		c.ttl = ttl
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisValueListCacheOption {
	return func(c *RedisValueListCache) {
		c.logger = logger
	}
}

// NewRedisValueListCache connects to addr and verifies the connection
func NewRedisValueListCache(addr, password string, db int, opts ...RedisValueListCacheOption) (*RedisValueListCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisValueListCacheWithClient(client, opts...)
	c.ownsClient = true
	return c, nil
}

// NewRedisValueListCacheWithClient creates a cache with an existing Redis client.
// The caller retains ownership of the client.
func NewRedisValueListCacheWithClient(client *redis.Client, opts ...RedisValueListCacheOption) *RedisValueListCache {
	c := &RedisValueListCache{
		client: client,
		ttl:    time.Hour,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func valueListKey(accountID uuid.UUID, attributeKey string) string {
	return valueListKeyPrefix + accountID.String() + ":" + attributeKey
}

// Get retrieves a value list from cache
func (c *RedisValueListCache) Get(ctx context.Context, accountID uuid.UUID, attributeKey string) ([]string, bool, error) {
	cacheKey := valueListKey(accountID, attributeKey)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Cache miss for value list", zap.String("key", cacheKey))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value list from cache: %w", err)
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		c.logger.Warn("Dropping corrupted value list cache entry",
			zap.String("key", cacheKey),
			zap.Error(err))
		_ = c.client.Del(ctx, cacheKey)
		return nil, false, nil
	}
	return values, true, nil
}

// Set stores a value list in cache
func (c *RedisValueListCache) Set(ctx context.Context, accountID uuid.UUID, attributeKey string, values []string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	if values == nil {
		values = []string{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal value list: %w", err)
	}

	if err := c.client.Set(ctx, valueListKey(accountID, attributeKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value list in cache: %w", err)
	}
	return nil
}

// InvalidateAccount removes every cached value list of the account
func (c *RedisValueListCache) InvalidateAccount(ctx context.Context, accountID uuid.UUID) error {
	// SCAN rather than KEYS so a large keyspace does not block Redis
	pattern := valueListKeyPrefix + accountID.String() + ":*"
	var cursor uint64
	var deleted int64

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Invalidated value list cache",
		zap.String("account_id", accountID.String()),
		zap.Int64("deleted_count", deleted))
	return nil
}

// Close releases the client if the cache created it
func (c *RedisValueListCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var _ taxonomy.ValueListCache = (*RedisValueListCache)(nil)
