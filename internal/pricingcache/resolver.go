package pricingcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// Resolver decorates a storage.PricingRepository with a read cache over
// Resolve, keyed by (provider, model, region) and holding the whole
// interval group so repeated lookups for different timestamps against the
// same group are served without a round trip. Insert and Close delegate
// first and, once the write succeeds, invalidate the cache (Insert drops the
// written group, Close flushes every group), so a cached Resolve never
// serves a pricing row a write has superseded.
//
// Resolver itself satisfies storage.PricingRepository, so it drops in
// anywhere a PricingRepository is expected.
//
// This is distinct from pricing.CachingStore, which caches in front of any
// pricing.Store (cmd/costctl's pricing seed wraps the SQL-backed repository
// in one) and keeps its cache in process only; Resolver decorates a
// storage.PricingRepository directly, for the storage/postgres and
// storage/sqlite backends where an uncached Resolve is a real round trip,
// and optionally shares that cache across instances via RedisCache.
type Resolver struct {
	repo  storage.PricingRepository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// New wraps repo with cache, using ttl as the per-group expiry.
func New(repo storage.PricingRepository, cache Cache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultConfig().DefaultTTL
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, log: logx.WithComponent("pricingcache")}
}

func groupCacheKey(provider domain.Provider, model string, region *string) string {
	r := ""
	if region != nil {
		r = *region
	}
	return strings.ToLower(string(provider)) + ":" + strings.ToLower(model) + ":" + r
}

// Resolve serves from the cached group when present, falling back to repo
// on a miss and populating the cache for subsequent calls.
func (r *Resolver) Resolve(ctx context.Context, q storage.Querier, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	key := groupCacheKey(provider, model, region)

	if rows, ok := r.loadGroup(ctx, key); ok {
		if table, found := coveringRow(rows, at); found {
			return table, nil
		}
		regionStr := ""
		if region != nil {
			regionStr = *region
		}
		return nil, errs.PricingNotFound(string(provider), model, at, regionStr)
	}

	rows, err := r.repo.List(ctx, q, &provider, &model, nil)
	if err != nil {
		return nil, err
	}
	filtered := filterByRegion(rows, region)
	r.storeGroup(ctx, key, filtered)

	table, found := coveringRow(filtered, at)
	if !found {
		regionStr := ""
		if region != nil {
			regionStr = *region
		}
		return nil, errs.PricingNotFound(string(provider), model, at, regionStr)
	}
	return table, nil
}

// Insert delegates to repo then invalidates the written group's cache
// entry, so the next Resolve reloads the now-current interval set.
func (r *Resolver) Insert(ctx context.Context, q storage.Querier, table *domain.PricingTable) error {
	if err := r.repo.Insert(ctx, q, table); err != nil {
		return err
	}
	return r.invalidate(ctx, table.Provider, table.ModelName, table.Region)
}

// Close delegates to repo then invalidates every group, since the
// resolver only has previousID, not the group it belongs to, and a close
// is rare enough that a full flush is cheap relative to a DB round trip.
func (r *Resolver) Close(ctx context.Context, q storage.Querier, previousID ids.ID, endDate time.Time) error {
	if err := r.repo.Close(ctx, q, previousID, endDate); err != nil {
		return err
	}
	if err := r.cache.DeletePattern(ctx, "*"); err != nil {
		r.log.Warn("pricing cache flush failed after close", "error", err)
	}
	return nil
}

// List always goes straight to repo: it's an administrative/listing path,
// not the hot resolve path the cache exists for.
func (r *Resolver) List(ctx context.Context, q storage.Querier, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	return r.repo.List(ctx, q, provider, model, activeAt)
}

// OverlappingIntervals always goes straight to repo for the same reason.
func (r *Resolver) OverlappingIntervals(ctx context.Context, q storage.Querier, provider domain.Provider, model string, region *string, effective time.Time, end *time.Time) ([]domain.PricingTable, error) {
	return r.repo.OverlappingIntervals(ctx, q, provider, model, region, effective, end)
}

func (r *Resolver) invalidate(ctx context.Context, provider domain.Provider, model string, region *string) error {
	if err := r.cache.Delete(ctx, groupCacheKey(provider, model, region)); err != nil {
		r.log.Warn("pricing cache invalidation failed", "provider", provider, "model", model, "error", err)
		return err
	}
	return nil
}

func (r *Resolver) loadGroup(ctx context.Context, key string) ([]domain.PricingTable, bool) {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("pricing cache read failed", "key", key, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var rows []domain.PricingTable
	if err := json.Unmarshal(raw, &rows); err != nil {
		r.log.Warn("pricing cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return rows, true
}

func (r *Resolver) storeGroup(ctx context.Context, key string, rows []domain.PricingTable) {
	raw, err := json.Marshal(rows)
	if err != nil {
		r.log.Warn("pricing cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.ttl); err != nil {
		r.log.Warn("pricing cache write failed", "key", key, "error", err)
	}
}

func filterByRegion(rows []domain.PricingTable, region *string) []domain.PricingTable {
	out := make([]domain.PricingTable, 0, len(rows))
	for _, row := range rows {
		if sameRegion(row.Region, region) {
			out = append(out, row)
		}
	}
	return out
}

func sameRegion(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

func coveringRow(rows []domain.PricingTable, at time.Time) (*domain.PricingTable, bool) {
	for i := range rows {
		if rows[i].Covers(at) {
			row := rows[i]
			return &row, true
		}
	}
	return nil, false
}

var _ storage.PricingRepository = (*Resolver)(nil)
