// Package ingest implements usage-record intake (spec §4.4): single-record
// and batch ingestion, idempotent on ID, with an optional async mode that
// hands cost calculation off to internal/worker instead of computing it
// inline.
package ingest

import (
	"context"
	"time"

	"log/slog"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// Mode selects whether Ingest computes a cost record inline or leaves the
// usage record pending for the async worker (spec §4.4).
type Mode int

const (
	// Sync prices the record inline, in the same call.
	Sync Mode = iota
	// Async writes the usage record only; internal/worker prices it later.
	Async
)

// ClockSkew bounds how far in the future a usage record's timestamp may be
// relative to ingest time before NewUsageRecord rejects it (spec §4.4).
const ClockSkew = 5 * time.Minute

// Result reports what Ingest did with one record.
type Result struct {
	UsageID  ids.ID
	Inserted bool // false means the ID was already present (idempotent replay)
	Priced   bool // true if a cost record was computed and stored (Sync mode)
}

// Pipeline wires the repositories and calculator a single ingest call
// needs.
type Pipeline struct {
	db      storage.TxBeginner
	usage   storage.UsageRepository
	cost    storage.CostRepository
	pricing storage.PricingRepository
	calc    *costcalc.Calculator
	sink    events.Sink
	log     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink attaches the observability sink events are emitted through
// (spec §6's observability contract). The default is events.NoopSink{}.
func WithSink(sink events.Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// New builds a Pipeline. db must also satisfy storage.Querier outside a
// transaction (both *sql.DB types from storage/postgres and storage/sqlite
// do).
func New(db storage.TxBeginner, usage storage.UsageRepository, cost storage.CostRepository, pricing storage.PricingRepository, calc *costcalc.Calculator, opts ...Option) *Pipeline {
	p := &Pipeline{db: db, usage: usage, cost: cost, pricing: pricing, calc: calc, sink: events.NoopSink{}, log: logx.WithComponent("ingest")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ingestOutcome carries everything ingestWithin learned inside the
// transaction that the caller needs once it's committed: the Result plus
// enough to emit events without re-querying.
type ingestOutcome struct {
	rec   *domain.UsageRecord
	table *domain.PricingTable
	cost  *domain.CostRecord
	res   Result
}

// Ingest validates input, assigns derived fields, and persists one usage
// record in a single transaction. In Sync mode it also resolves pricing and
// writes the resulting cost record in the same transaction; a pricing
// resolve failure fails the whole call, so the caller either gets a priced
// record or nothing (spec §4.4). Async mode never prices inline — the usage
// record is left for internal/worker, which does tolerate an unresolvable
// price by leaving the record pending for a later pass.
func (p *Pipeline) Ingest(ctx context.Context, input domain.UsageIngestInput, mode Mode, now time.Time) (*Result, error) {
	tx, err := p.db.BeginTx(ctx, storage.SnapshotTxOptions)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	defer tx.Rollback()

	out, err := p.ingestWithin(ctx, tx, input, mode, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Persistence(err)
	}

	p.emit(ctx, out, now)
	return &out.res, nil
}

// ingestWithin runs the validate-insert-price steps against the given
// querier without beginning or ending a transaction, so callers that need
// several records in one atomic unit (BatchIngest without partial_ok) can
// share a single outer transaction across calls.
func (p *Pipeline) ingestWithin(ctx context.Context, tx storage.Querier, input domain.UsageIngestInput, mode Mode, now time.Time) (*ingestOutcome, error) {
	rec, err := domain.NewUsageRecord(input, now, ClockSkew)
	if err != nil {
		return nil, err
	}

	inserted, err := p.usage.Insert(ctx, tx, rec)
	if err != nil {
		return nil, errs.Persistence(err)
	}

	var priced bool
	var table *domain.PricingTable
	var cost *domain.CostRecord
	if inserted && mode == Sync {
		cost, table, err = p.priceOne(ctx, tx, rec, now)
		if err != nil {
			return nil, err
		}
		priced = cost != nil
	}

	return &ingestOutcome{
		rec:   rec,
		table: table,
		cost:  cost,
		res:   Result{UsageID: rec.ID, Inserted: inserted, Priced: priced},
	}, nil
}

// emit logs and publishes the observability events for an outcome that has
// already been committed. Never called before a successful commit, so an
// event is never published for work that didn't happen.
func (p *Pipeline) emit(ctx context.Context, out *ingestOutcome, now time.Time) {
	rec := out.rec
	p.log.Info("usage.ingested", "usage_id", rec.ID, "inserted", out.res.Inserted, "priced", out.res.Priced)
	if out.res.Inserted {
		p.sink.Emit(ctx, events.NewUsageIngested(rec.OrganizationID, rec.ID.String(), string(rec.Provider), rec.Model.Name, rec.TotalTokens, now))
	}
	if out.res.Priced {
		p.sink.Emit(ctx, events.NewPricingResolved(rec.OrganizationID, string(rec.Provider), rec.Model.Name, out.table.ID.String(), now))
		p.sink.Emit(ctx, events.NewCostCalculated(rec.OrganizationID, rec.ID.String(), out.cost.ID.String(), out.cost.TotalCost.String(), out.cost.Currency, out.cost.Pending, now))
	}
}

// priceOne resolves pricing and writes a cost record for rec within tx.
// Called only in Sync mode, so any resolve failure — including
// PricingNotFound — propagates and aborts the whole ingest (spec §4.4,
// Scenario D): Sync callers get a priced record or an error, never a
// silently-pending one.
func (p *Pipeline) priceOne(ctx context.Context, tx storage.Querier, rec *domain.UsageRecord, now time.Time) (*domain.CostRecord, *domain.PricingTable, error) {
	table, err := p.pricing.Resolve(ctx, tx, rec.Provider, rec.Model.Name, rec.Timestamp, nil)
	if err != nil {
		return nil, nil, err
	}

	cost, err := p.calc.Calculate(rec, table, now.UTC(), "")
	if err != nil {
		return nil, nil, err
	}
	if err := p.cost.Insert(ctx, tx, cost); err != nil {
		return nil, nil, errs.Persistence(err)
	}
	return cost, table, nil
}
