package cache

import (
	"fmt"

	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// FactoryOption is a functional option for NewValueListCache
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger used by the created cache
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory cache. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewValueListCache creates the Redis cache when enabled, otherwise the
// in-memory one.
func NewValueListCache(cfg config.RedisConfig, opts ...FactoryOption) (taxonomy.ValueListCache, error) {
	f := &factory{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	inMemory := func() taxonomy.ValueListCache {
		return NewInMemoryValueListCache(
			WithInMemoryTTL(cfg.ValueListTTL),
			WithInMemoryLogger(f.logger),
		)
	}

	if !cfg.Enabled {
		return inMemory(), nil
	}

	redisCache, err := NewRedisValueListCache(cfg.Addr(), cfg.Password, cfg.DB,
		WithDefaultTTL(cfg.ValueListTTL),
		WithCacheLogger(f.logger),
	)
	if err == nil {
		f.logger.Info("using Redis value list cache", zap.String("addr", cfg.Addr()))
		return redisCache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for value list cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory value list cache", zap.Error(err))
	return inMemory(), nil
}
