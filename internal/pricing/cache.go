package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
)

// CachingStore wraps a Store with an in-memory cache of each (provider,
// model, region) group's sorted rows, invalidated on every write (spec §9
// "Pricing cache... invalidated on every pricing write"). It exists for
// SQL-backed stores where List/Resolve would otherwise round-trip to the
// database on every lookup; InMemoryStore does not need it.
//
// Concurrent cache misses for the same group are collapsed with
// singleflight so a burst of resolves against a cold cache issues one
// underlying List call, not one per caller.
type CachingStore struct {
	inner Store
	sf    singleflight.Group

	mu    sync.RWMutex
	cache map[groupKey][]domain.PricingTable
}

// NewCachingStore wraps inner with a group-keyed read cache.
func NewCachingStore(inner Store) *CachingStore {
	return &CachingStore{inner: inner, cache: make(map[groupKey][]domain.PricingTable)}
}

func (c *CachingStore) invalidate() {
	c.mu.Lock()
	c.cache = make(map[groupKey][]domain.PricingTable)
	c.mu.Unlock()
}

// Insert delegates to inner then drops the whole cache.
func (c *CachingStore) Insert(ctx context.Context, table *domain.PricingTable) error {
	if err := c.inner.Insert(ctx, table); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// Close delegates to inner then drops the whole cache.
func (c *CachingStore) Close(ctx context.Context, previousID ids.ID, endDate time.Time) error {
	if err := c.inner.Close(ctx, previousID, endDate); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *CachingStore) group(ctx context.Context, provider domain.Provider, model string, region *string) ([]domain.PricingTable, error) {
	key := keyOf(provider, model, region)

	c.mu.RLock()
	rows, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return rows, nil
	}

	v, err, _ := c.sf.Do(fmt.Sprintf("%v", key), func() (interface{}, error) {
		all, err := c.inner.List(ctx, &provider, &model, nil)
		if err != nil {
			return nil, err
		}
		// List does not filter by region; keep only this group's rows.
		fetched := make([]domain.PricingTable, 0, len(all))
		for _, row := range all {
			if keyOf(row.Provider, row.ModelName, row.Region) == key {
				fetched = append(fetched, row)
			}
		}
		c.mu.Lock()
		c.cache[key] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.PricingTable), nil
}

// Resolve serves from the cached group, falling back to inner.Resolve
// directly when the group hasn't been warmed yet (matching inner's own
// model-normalization fallback behavior).
func (c *CachingStore) Resolve(ctx context.Context, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	rows, err := c.group(ctx, provider, model, region)
	if err != nil || len(rows) == 0 {
		return c.inner.Resolve(ctx, provider, model, at, region)
	}
	for i := range rows {
		if rows[i].Covers(at) {
			row := rows[i]
			return &row, nil
		}
	}
	return c.inner.Resolve(ctx, provider, model, at, region)
}

// List always delegates to inner: administrative listing wants a fresh
// read, not a possibly-stale cached group.
func (c *CachingStore) List(ctx context.Context, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	return c.inner.List(ctx, provider, model, activeAt)
}
