// Package pricing implements the pricing store (spec §4.1): time-versioned
// pricing tables indexed by (provider, model, region), with insert/close
// respecting a non-overlap invariant and resolve/list serving lookups.
package pricing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
)

// Store is the pricing store's contract. Implementations must be safe for
// concurrent readers with exclusive writers (spec §5).
type Store interface {
	Insert(ctx context.Context, table *domain.PricingTable) error
	Close(ctx context.Context, previousID ids.ID, endDate time.Time) error
	Resolve(ctx context.Context, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error)
	List(ctx context.Context, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error)
}

const noRegion = ""

type groupKey struct {
	provider domain.Provider
	model    string
	region   string
}

func keyOf(provider domain.Provider, model string, region *string) groupKey {
	r := noRegion
	if region != nil {
		r = *region
	}
	return groupKey{provider: provider, model: strings.ToLower(model), region: r}
}

// InMemoryStore is the engine's reference Store implementation: a sorted
// per-group slice, correct but O(log n) per group via binary search rather
// than a persisted ordered-key store. Production deployments back Store
// with storage/postgres or storage/sqlite instead.
type InMemoryStore struct {
	mu      sync.RWMutex
	groups  map[groupKey][]*domain.PricingTable
	byID    map[ids.ID]groupKey
}

// NewInMemoryStore builds an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		groups: make(map[groupKey][]*domain.PricingTable),
		byID:   make(map[ids.ID]groupKey),
	}
}

// Insert adds table, rejecting overlaps within its (provider, model,
// region) group and structurally invalid tables.
func (s *InMemoryStore) Insert(_ context.Context, table *domain.PricingTable) error {
	if table == nil {
		return errs.Validation("table", "must not be nil")
	}
	if err := table.Validate(); err != nil {
		return err
	}
	if ids.IsNil(table.ID) {
		table.ID = ids.New()
	}

	key := keyOf(table.Provider, table.ModelName, table.Region)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.groups[key]
	for _, existing := range rows {
		if existing.Overlaps(*table) {
			return errs.PricingOverlapConflict(existing.ID)
		}
	}

	rows = append(rows, table)
	sort.Slice(rows, func(i, j int) bool { return rows[i].EffectiveDate.Before(rows[j].EffectiveDate) })
	s.groups[key] = rows
	s.byID[table.ID] = key
	return nil
}

// Close sets end_date on an open interval identified by previousID.
func (s *InMemoryStore) Close(_ context.Context, previousID ids.ID, endDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[previousID]
	if !ok {
		return errs.Validation("previous_id", "no such pricing table")
	}
	rows := s.groups[key]
	idx := -1
	for i, r := range rows {
		if r.ID == previousID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errs.Validation("previous_id", "no such pricing table")
	}
	row := rows[idx]
	if row.EndDate != nil {
		return errs.Validation("previous_id", "interval is already closed")
	}
	if !endDate.After(row.EffectiveDate) {
		return errs.Validation("end_date", "must be after effective_date")
	}
	if idx+1 < len(rows) && endDate.After(rows[idx+1].EffectiveDate) {
		return errs.Validation("end_date", "would overlap the next interval")
	}

	end := endDate.UTC()
	row.EndDate = &end
	return nil
}

// Resolve looks up the pricing row covering at for (provider, model,
// region). It tries the exact model name first (region-specific group,
// then regionless group), then falls back to a normalized model name
// (spec §12 feature 1) under the same precedence. An exact, more specific
// match always wins over the normalized fallback.
func (s *InMemoryStore) Resolve(_ context.Context, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if row, ok := s.tryResolve(provider, model, at, region); ok {
		return row, nil
	}

	normalized := NormalizeModelName(model)
	if normalized != strings.ToLower(model) {
		if row, ok := s.tryResolve(provider, normalized, at, region); ok {
			return row, nil
		}
	}

	regionStr := ""
	if region != nil {
		regionStr = *region
	}
	return nil, errs.PricingNotFound(string(provider), model, at, regionStr)
}

func (s *InMemoryStore) tryResolve(provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, bool) {
	if region != nil {
		if row, ok := findCovering(s.groups[keyOf(provider, model, region)], at); ok {
			return row, true
		}
	}
	return findCovering(s.groups[keyOf(provider, model, nil)], at)
}

func findCovering(rows []*domain.PricingTable, at time.Time) (*domain.PricingTable, bool) {
	// rows is sorted by EffectiveDate ascending; binary search for the
	// last row whose EffectiveDate <= at, then confirm it covers at.
	i := sort.Search(len(rows), func(i int) bool { return rows[i].EffectiveDate.After(at) })
	if i == 0 {
		return nil, false
	}
	candidate := rows[i-1]
	if candidate.Covers(at) {
		return candidate, true
	}
	return nil, false
}

// List returns pricing tables matching the optional filters, ordered by
// (effective_date, id) for deterministic administrative listing (spec §12
// feature 7).
func (s *InMemoryStore) List(_ context.Context, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PricingTable
	for key, rows := range s.groups {
		if provider != nil && key.provider != *provider {
			continue
		}
		if model != nil && key.model != strings.ToLower(*model) {
			continue
		}
		for _, r := range rows {
			if activeAt != nil && !r.Covers(*activeAt) {
				continue
			}
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].EffectiveDate.Before(out[j].EffectiveDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
