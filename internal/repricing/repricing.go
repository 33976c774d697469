// Package repricing implements pricing invalidation (spec §4.7): when a
// newly inserted pricing table covers usage records already priced under
// an older table for the same (provider, model), those cost records are
// stale. Scan walks the secondary index (storage.UsageRepository's
// ListByPricingScope) over the new interval and writes a fresh cost record
// for every affected usage record; the old cost record is never updated in
// place, so CostRepository.CurrentByUsageID keeps returning the latest by
// CalculatedAt.
package repricing

import (
	"context"

	"log/slog"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// Scanner recomputes cost records affected by a pricing table change.
type Scanner struct {
	db    storage.Querier
	usage storage.UsageRepository
	cost  storage.CostRepository
	calc  *costcalc.Calculator
	sink  events.Sink
	clock clock.Clock
	log   *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSink attaches the observability sink events are emitted through.
// The default is events.NoopSink{}.
func WithSink(sink events.Sink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithClock overrides the Scanner's time source. The default is
// clock.System{}; tests substitute a clock.Manual to pin calculated_at.
func WithClock(clk clock.Clock) Option {
	return func(s *Scanner) { s.clock = clk }
}

// New builds a Scanner over the given repositories, all queried through db.
func New(db storage.Querier, usage storage.UsageRepository, cost storage.CostRepository, calc *costcalc.Calculator, opts ...Option) *Scanner {
	s := &Scanner{db: db, usage: usage, cost: cost, calc: calc, sink: events.NoopSink{}, clock: clock.System{}, log: logx.WithComponent("repricing")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports a completed scan.
type Result struct {
	Scanned    int
	Recomputed int
}

// Rescan walks every usage record for (provider, model) whose timestamp
// falls in [table.EffectiveDate, table.EndDate) and writes a new cost
// record priced under table, superseding whatever the record's current
// cost was (spec §4.7). It accepts ctx cancellation at each record: an
// already-committed recompute stays committed, the scan stops, and the
// caller receives Cancelled or Timeout rather than a partial Result
// reported as success.
func (s *Scanner) Rescan(ctx context.Context, table *domain.PricingTable) (*Result, error) {
	records, err := s.usage.ListByPricingScope(ctx, s.db, table.Provider, table.ModelName, table.EffectiveDate, table.EndDate)
	if err != nil {
		return nil, errs.Persistence(err)
	}

	result := &Result{Scanned: len(records)}
	for i := range records {
		select {
		case <-ctx.Done():
			return nil, ctxErr(ctx)
		default:
		}

		rec := &records[i]
		cost, err := s.calc.Calculate(rec, table, s.clock.Now(), "")
		if err != nil {
			s.log.Warn("repricing: recompute failed, leaving prior cost record current",
				"usage_id", rec.ID, "pricing_table_id", table.ID, "error", err.Error())
			continue
		}
		if err := s.cost.Insert(ctx, s.db, cost); err != nil {
			return nil, errs.Persistence(err)
		}
		result.Recomputed++
		s.sink.Emit(ctx, events.NewCostCalculated(rec.OrganizationID, rec.ID.String(), cost.ID.String(), cost.TotalCost.String(), cost.Currency, cost.Pending, cost.CalculatedAt))
	}

	s.log.Info("repricing: scan complete", "provider", table.Provider, "model", table.ModelName,
		"scanned", result.Scanned, "recomputed", result.Recomputed)
	return result, nil
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errs.Timeout()
	}
	return errs.Cancelled()
}
