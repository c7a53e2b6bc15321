package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

type cacheEntry struct {
	values    []string
	expiresAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemoryValueListCache implements taxonomy.ValueListCache in process memory.
// It backs single-process runs and stands in when Redis is unavailable.
type InMemoryValueListCache struct {
	entries sync.Map // map[string]*cacheEntry
	ttl     time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

// InMemoryValueListCacheOption is a functional option for configuring the cache
type InMemoryValueListCacheOption func(*InMemoryValueListCache)

// WithInMemoryTTL sets the TTL used when Set is called with ttl 0
func WithInMemoryTTL(ttl time.Duration) InMemoryValueListCacheOption {
	return func(c *InMemoryValueListCache) {
		c.ttl = ttl
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryValueListCacheOption {
	return func(c *InMemoryValueListCache) {
		c.logger = logger
	}
}

// NewInMemoryValueListCache creates a cache and starts its cleanup goroutine.
// Call Close to stop it.
func NewInMemoryValueListCache(opts ...InMemoryValueListCacheOption) *InMemoryValueListCache {
	c := &InMemoryValueListCache{
		ttl:    time.Hour,
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()

	return c
}

// Get retrieves a value list from cache
func (c *InMemoryValueListCache) Get(ctx context.Context, accountID uuid.UUID, attributeKey string) ([]string, bool, error) {
	key := valueListKey(accountID, attributeKey)
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*cacheEntry)
		if !entry.isExpired(time.Now()) {
			atomic.AddInt64(&c.hits, 1)
			return append([]string(nil), entry.values...), true, nil
		}
		c.entries.Delete(key)
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, false, nil
}

// Set stores a copy of values
func (c *InMemoryValueListCache) Set(ctx context.Context, accountID uuid.UUID, attributeKey string, values []string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.entries.Store(valueListKey(accountID, attributeKey), &cacheEntry{
		values:    append([]string{}, values...),
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// InvalidateAccount removes every cached value list of the account
func (c *InMemoryValueListCache) InvalidateAccount(ctx context.Context, accountID uuid.UUID) error {
	prefix := valueListKeyPrefix + accountID.String() + ":"
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Close stops the cleanup goroutine
func (c *InMemoryValueListCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *InMemoryValueListCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of entries in the cache
func (c *InMemoryValueListCache) Count() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *InMemoryValueListCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup(time.Now())
		}
	}
}

func (c *InMemoryValueListCache) doCleanup(now time.Time) {
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry).isExpired(now) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired value list entries", zap.Int("removed", removed))
	}
}

var _ taxonomy.ValueListCache = (*InMemoryValueListCache)(nil)
