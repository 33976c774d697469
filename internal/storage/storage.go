// Package storage defines the persistence layer's repository contracts
// (spec §4.5): three repositories over an ordered-key relational store.
// The engine itself is abstract — storage/postgres and storage/sqlite are
// two concrete backends satisfying these interfaces.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting repository
// methods run either standalone or inside a caller-managed transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is satisfied by *sql.DB; it is the entry point for the
// snapshot-isolation transactions spec §4.5 requires for ingest+cost
// writes.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SnapshotTxOptions requests the strongest isolation database/sql exposes;
// Postgres honors it as SERIALIZABLE, SQLite's single-writer model makes
// it moot but harmless.
var SnapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelSerializable}

// UsageFilter narrows UsageRepository.List queries.
type UsageFilter struct {
	OrganizationID string
	ProjectID      *string
	Provider       *domain.Provider
	Model          *string
	Start, End     time.Time
}

// Page is a cursor-paginated request matching spec §6's
// (timestamp DESC, id) convention.
type Page struct {
	Limit           int
	CursorTimestamp *time.Time
	CursorID        *ids.ID
}

// UsageRepository persists and retrieves usage records. Inserts are
// idempotent on ID (spec §3, §8 property 5).
type UsageRepository interface {
	Insert(ctx context.Context, q Querier, usage *domain.UsageRecord) (inserted bool, err error)
	GetByID(ctx context.Context, q Querier, id ids.ID) (*domain.UsageRecord, error)
	List(ctx context.Context, q Querier, filter UsageFilter, page Page) ([]domain.UsageRecord, error)
	// ListByPricingScope returns usage records for (provider, model) whose
	// timestamp falls in [start, end), for the re-pricing scan (spec §4.7).
	ListByPricingScope(ctx context.Context, q Querier, provider domain.Provider, model string, start time.Time, end *time.Time) ([]domain.UsageRecord, error)
}

// CostFilter narrows CostRepository queries.
type CostFilter struct {
	OrganizationID string
	ProjectID      *string
	Provider       *domain.Provider
	Model          *string
	Tags           []string
	Start, End     time.Time
}

// CostRepository persists cost records. Recalculation writes a new row;
// CurrentByUsageID always returns the one with the latest CalculatedAt
// (spec §3, §4.7, §8 property 8).
type CostRepository interface {
	Insert(ctx context.Context, q Querier, cost *domain.CostRecord) error
	CurrentByUsageID(ctx context.Context, q Querier, usageID ids.ID) (*domain.CostRecord, error)
	ListCurrent(ctx context.Context, q Querier, filter CostFilter, page Page) ([]domain.CostRecord, error)
	// PendingUsageIDs returns usage IDs needing a cost computed,
	// for the async worker pool (spec §4.4, §12 feature 5).
	PendingUsageIDs(ctx context.Context, q Querier, limit int) ([]ids.ID, error)
}

// PricingRepository persists pricing tables, enforcing the non-overlap
// invariant either by constraint or serialized insert path (spec §4.5).
type PricingRepository interface {
	Insert(ctx context.Context, q Querier, table *domain.PricingTable) error
	Close(ctx context.Context, q Querier, previousID ids.ID, endDate time.Time) error
	Resolve(ctx context.Context, q Querier, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error)
	List(ctx context.Context, q Querier, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error)
	// OverlappingIntervals scans for existing rows intersecting
	// [effective, end) for the given group, used by Insert's conflict
	// check on backends without a native exclusion constraint.
	OverlappingIntervals(ctx context.Context, q Querier, provider domain.Provider, model string, region *string, effective time.Time, end *time.Time) ([]domain.PricingTable, error)
}

// Repositories bundles the three repositories the way the teacher's
// repository.Repository container bundles its entity repositories.
type Repositories struct {
	Usage   UsageRepository
	Cost    CostRepository
	Pricing PricingRepository
}
