package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appbilling "github.com/dentalclinic/backend/internal/application/billing"
	"github.com/dentalclinic/backend/internal/infrastructure/config"
)

// RedisBalanceCache caches computed patient balances in Redis. Balances are
// stored as JSON under one key per tenant and patient, so a miss or a Redis
// outage only costs a recomputation from the store.
type RedisBalanceCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBalanceCache creates a balance cache connected per configuration
func NewRedisBalanceCache(cfg *config.RedisConfig, ttl time.Duration) (*RedisBalanceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBalanceCache{
		client:    client,
		keyPrefix: "billing:balance:",
		ttl:       ttl,
	}, nil
}

// NewRedisBalanceCacheWithClient creates a cache with an existing Redis client.
// Useful for testing or when sharing a client across components.
func NewRedisBalanceCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBalanceCache {
	if keyPrefix == "" {
		keyPrefix = "billing:balance:"
	}
	return &RedisBalanceCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *RedisBalanceCache) key(tenantID, patientID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", c.keyPrefix, tenantID, patientID)
}

// Get returns the cached balance, or found=false on a miss
func (c *RedisBalanceCache) Get(ctx context.Context, tenantID, patientID uuid.UUID) (*appbilling.PatientBalance, bool, error) {
	value, err := c.client.Get(ctx, c.key(tenantID, patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached balance: %w", err)
	}

	var balance appbilling.PatientBalance
	if err := json.Unmarshal(value, &balance); err != nil {
		// A corrupt value is treated as a miss so the caller recomputes
		return nil, false, nil
	}
	return &balance, true, nil
}

// Set stores a computed balance with the cache's configured TTL
func (c *RedisBalanceCache) Set(ctx context.Context, tenantID, patientID uuid.UUID, balance *appbilling.PatientBalance) error {
	payload, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to encode balance: %w", err)
	}
	if err := c.client.Set(ctx, c.key(tenantID, patientID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

// Invalidate drops the cached balance after a financial mutation
func (c *RedisBalanceCache) Invalidate(ctx context.Context, tenantID, patientID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(tenantID, patientID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balance: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection
func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}
