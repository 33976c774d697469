// Package worker implements the background cost-calculation worker (spec
// §4.4 async mode, §12 feature 5): it polls for usage records with no
// current cost record (or a pending one), resolves pricing, and writes the
// resulting cost record.
package worker

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 100
)

// Option configures a Worker.
type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithSink attaches the observability sink events are emitted through
// (spec §6's observability contract). The default is events.NoopSink{}.
func WithSink(sink events.Sink) Option {
	return func(w *Worker) { w.sink = sink }
}

// WithClock overrides the Worker's time source. The default is
// clock.System{}; tests substitute a clock.Manual to pin calculated_at.
func WithClock(clk clock.Clock) Option {
	return func(w *Worker) { w.clock = clk }
}

// Worker periodically drains storage.CostRepository.PendingUsageIDs,
// pricing each one and writing its cost record. It is safe to Start/Stop
// once; a stopped Worker must be discarded, not restarted.
type Worker struct {
	db       storage.Querier
	usage    storage.UsageRepository
	cost     storage.CostRepository
	pricing  storage.PricingRepository
	calc     *costcalc.Calculator
	sink     events.Sink
	clock    clock.Clock
	interval time.Duration
	batchSize int
	log      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	lastRun   *time.Time
	lastCount int
}

// New builds a Worker over the given repositories, all queried through db.
func New(db storage.Querier, usage storage.UsageRepository, cost storage.CostRepository, pricing storage.PricingRepository, calc *costcalc.Calculator, opts ...Option) *Worker {
	w := &Worker{
		db:        db,
		usage:     usage,
		cost:      cost,
		pricing:   pricing,
		calc:      calc,
		sink:      events.NoopSink{},
		clock:     clock.System{},
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		log:       logx.WithComponent("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop. It returns once the loop goroutine has
// been launched; Stop blocks until it exits.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errs.Internal("worker_already_running", nil)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.wg.Add(1)

	w.log.Info("worker starting", "interval", w.interval, "batch_size", w.batchSize)
	go w.run()
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.log.Info("worker stopped")
}

// Stats is the worker's runtime snapshot (spec §12 feature 5).
type Stats struct {
	Running            bool
	Interval           time.Duration
	BatchSize          int
	LastProcessedAt    *time.Time
	LastProcessedCount int
}

func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Running:            w.running,
		Interval:           w.interval,
		BatchSize:          w.batchSize,
		LastProcessedAt:    w.lastRun,
		LastProcessedCount: w.lastCount,
	}
}

// PendingCount reports how many usage records have no current, non-pending
// cost record. It passes limit 0, which storage/postgres and storage/sqlite
// treat as 100, so against those backends the count tops out at 100.
func (w *Worker) PendingCount(ctx context.Context) (int, error) {
	ids, err := w.cost.PendingUsageIDs(ctx, w.db, 0)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ForceDrain processes pending usage records synchronously until a pass
// yields nothing new, regardless of the polling loop's state (spec §12
// feature 5). It is safe to call while the background loop is running;
// the two share no state beyond the repositories themselves.
func (w *Worker) ForceDrain(ctx context.Context) (int, error) {
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, err := w.ProcessOnce(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.processBatch()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processBatch()
		}
	}
}

func (w *Worker) processBatch() {
	n, err := w.ProcessOnce(w.ctx)
	if err != nil {
		w.log.Error("worker: batch failed", "error", err.Error())
		return
	}
	w.mu.Lock()
	now := w.clock.Now()
	w.lastRun = &now
	w.lastCount = n
	w.mu.Unlock()
	if n > 0 {
		w.log.Info("worker: processed batch", "count", n)
	}
}

// ProcessOnce prices up to batchSize pending usage records and returns how
// many it successfully processed. A single record's pricing failure is
// logged and skipped rather than aborting the whole batch.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	pending, err := w.cost.PendingUsageIDs(ctx, w.db, w.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range pending {
		usageRec, err := w.usage.GetByID(ctx, w.db, id)
		if err != nil {
			return processed, err
		}
		if usageRec == nil {
			continue
		}

		table, err := w.pricing.Resolve(ctx, w.db, usageRec.Provider, usageRec.Model.Name, usageRec.Timestamp, nil)
		if err != nil {
			w.log.Warn("worker: pricing resolve failed, leaving usage pending",
				"usage_id", id, "provider", usageRec.Provider, "model", usageRec.Model.Name, "error", err.Error())
			continue
		}

		now := w.clock.Now()
		rec, err := w.calc.Calculate(usageRec, table, now, "")
		if err != nil {
			w.log.Warn("worker: cost calculation failed, leaving usage pending",
				"usage_id", id, "error", err.Error())
			continue
		}

		if err := w.cost.Insert(ctx, w.db, rec); err != nil {
			return processed, err
		}
		w.sink.Emit(ctx, events.NewPricingResolved(usageRec.OrganizationID, string(usageRec.Provider), usageRec.Model.Name, table.ID.String(), now))
		w.sink.Emit(ctx, events.NewCostCalculated(usageRec.OrganizationID, usageRec.ID.String(), rec.ID.String(), rec.TotalCost.String(), rec.Currency, rec.Pending, now))
		processed++
	}
	return processed, nil
}

// ImmediateRunner drains every pending usage record synchronously and
// exits, for CLI / batch-job callers that want drain-to-completion
// semantics rather than a background loop (spec §12 feature 6).
type ImmediateRunner struct {
	db        storage.Querier
	usage     storage.UsageRepository
	cost      storage.CostRepository
	pricing   storage.PricingRepository
	calc      *costcalc.Calculator
	sink      events.Sink
	clock     clock.Clock
	batchSize int
	log       *slog.Logger
}

func NewImmediateRunner(db storage.Querier, usage storage.UsageRepository, cost storage.CostRepository, pricing storage.PricingRepository, calc *costcalc.Calculator, batchSize int, opts ...Option) *ImmediateRunner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	w := &Worker{sink: events.NoopSink{}, clock: clock.System{}}
	for _, opt := range opts {
		opt(w)
	}
	return &ImmediateRunner{
		db:        db,
		usage:     usage,
		cost:      cost,
		pricing:   pricing,
		calc:      calc,
		sink:      w.sink,
		clock:     w.clock,
		batchSize: batchSize,
		log:       logx.WithComponent("worker.immediate"),
	}
}

// Run processes batches until a pass yields zero newly-priced records, or
// ctx is cancelled.
func (r *ImmediateRunner) Run(ctx context.Context) (int, error) {
	w := &Worker{
		db:        r.db,
		usage:     r.usage,
		cost:      r.cost,
		pricing:   r.pricing,
		calc:      r.calc,
		sink:      r.sink,
		clock:     r.clock,
		batchSize: r.batchSize,
		log:       r.log,
		ctx:       ctx,
	}

	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, err := w.ProcessOnce(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}
