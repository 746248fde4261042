package cache

import (
	"time"

	"go.uber.org/zap"

	appbilling "github.com/dentalclinic/backend/internal/application/billing"
	"github.com/dentalclinic/backend/internal/infrastructure/config"
)

// BalanceCacheFactory creates balance caches based on configuration
type BalanceCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// BalanceCacheFactoryOption is a functional option for configuring the factory
type BalanceCacheFactoryOption func(*BalanceCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) BalanceCacheFactoryOption {
	return func(f *BalanceCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) BalanceCacheFactoryOption {
	return func(f *BalanceCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewBalanceCacheFactory creates a new factory
func NewBalanceCacheFactory(cfg config.RedisConfig, ttl time.Duration, opts ...BalanceCacheFactoryOption) *BalanceCacheFactory {
	f := &BalanceCacheFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create builds a Redis-backed cache, falling back to the in-memory cache
// when Redis is unreachable and fallback is allowed.
func (f *BalanceCacheFactory) Create() (appbilling.BalanceCache, error) {
	redisCache, err := NewRedisBalanceCache(&f.redisConfig, f.ttl)
	if err == nil {
		f.logger.Info("using Redis balance cache",
			zap.String("addr", f.redisConfig.Addr()))
		return redisCache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, err
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory balance cache",
		zap.Error(err))
	return NewInMemoryBalanceCache(f.ttl), nil
}

var _ appbilling.BalanceCache = (*RedisBalanceCache)(nil)
var _ appbilling.BalanceCache = (*InMemoryBalanceCache)(nil)
