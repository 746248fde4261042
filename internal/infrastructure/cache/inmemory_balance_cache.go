package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appbilling "github.com/dentalclinic/backend/internal/application/billing"
)

type balanceEntry struct {
	balance   appbilling.PatientBalance
	expiresAt time.Time
}

// InMemoryBalanceCache caches patient balances in a local map. Suitable for
// single-instance deployments and testing; multi-instance deployments need
// the Redis cache so invalidations are seen by every instance.
type InMemoryBalanceCache struct {
	mu      sync.RWMutex
	entries map[string]balanceEntry
	ttl     time.Duration
}

// NewInMemoryBalanceCache creates a new in-memory balance cache
func NewInMemoryBalanceCache(ttl time.Duration) *InMemoryBalanceCache {
	return &InMemoryBalanceCache{
		entries: make(map[string]balanceEntry),
		ttl:     ttl,
	}
}

func balanceKey(tenantID, patientID uuid.UUID) string {
	return tenantID.String() + ":" + patientID.String()
}

// Get returns the cached balance, or found=false on a miss
func (c *InMemoryBalanceCache) Get(ctx context.Context, tenantID, patientID uuid.UUID) (*appbilling.PatientBalance, bool, error) {
	c.mu.RLock()
	e, exists := c.entries[balanceKey(tenantID, patientID)]
	c.mu.RUnlock()

	if !exists || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	balance := e.balance
	return &balance, true, nil
}

// Set stores a computed balance with the cache's configured TTL
func (c *InMemoryBalanceCache) Set(ctx context.Context, tenantID, patientID uuid.UUID, balance *appbilling.PatientBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[balanceKey(tenantID, patientID)] = balanceEntry{
		balance:   *balance,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

// Invalidate drops the cached balance after a financial mutation
func (c *InMemoryBalanceCache) Invalidate(ctx context.Context, tenantID, patientID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, balanceKey(tenantID, patientID))
	return nil
}

// Len returns the number of cached entries, including expired ones
func (c *InMemoryBalanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
