package ingest

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// MaxBatchSize is the default cap on a single BatchIngest call (spec §6).
const MaxBatchSize = 1000

// DefaultConcurrency bounds how many records a batch prices concurrently.
const DefaultConcurrency = 8

// BatchOptions configures BatchIngest.
type BatchOptions struct {
	Mode        Mode
	MaxSize     int  // 0 means MaxBatchSize
	PartialOK   bool // if true, per-record failures are collected, not fatal
	Concurrency int  // 0 means DefaultConcurrency
	// Limiter, if set, throttles per-record ingestion (spec §5/§6 queue
	// depth and rate controls); nil means unthrottled.
	Limiter *rate.Limiter
}

// BatchItemResult pairs one input record's outcome (or error) with its
// position in the submitted batch, since OrganizationID/Timestamp alone
// don't uniquely identify a request before it's assigned an ID.
type BatchItemResult struct {
	Index  int
	Result *Result
	Err    error
}

// BatchResult is BatchIngest's output.
type BatchResult struct {
	Items        []BatchItemResult
	SuccessCount int
	FailureCount int
	errs         *multierror.Error
}

// Errors aggregates every per-item failure into one error (nil if none),
// for PartialOK callers that want to log or return the whole set rather
// than walking Items themselves.
func (r *BatchResult) Errors() error {
	return r.errs.ErrorOrNil()
}

// BatchIngest ingests up to opts.MaxSize records. With PartialOK set, each
// record commits independently and concurrently (bounded by
// opts.Concurrency): a failing record is recorded in Items and does not
// abort the rest of the batch, and the returned error is nil even if some
// items failed — callers must inspect BatchResult.FailureCount. Without
// PartialOK, the whole batch runs sequentially inside one outer
// transaction; the first error rolls the entire transaction back, so a
// failed non-partial batch leaves nothing committed (spec §4.4, property
// 10), and is returned directly.
func (p *Pipeline) BatchIngest(ctx context.Context, inputs []domain.UsageIngestInput, opts BatchOptions, now time.Time) (*BatchResult, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = MaxBatchSize
	}
	if len(inputs) > maxSize {
		return nil, errs.Validation("batch", "exceeds max_size")
	}

	if !opts.PartialOK {
		return p.batchIngestAtomic(ctx, inputs, opts, now)
	}
	return p.batchIngestPartial(ctx, inputs, opts, now)
}

// batchIngestAtomic runs every record through ingestWithin against one
// shared transaction, in submission order, stopping at the first failure
// and rolling the whole transaction back so no partial batch is ever
// committed.
func (p *Pipeline) batchIngestAtomic(ctx context.Context, inputs []domain.UsageIngestInput, opts BatchOptions, now time.Time) (*BatchResult, error) {
	tx, err := p.db.BeginTx(ctx, storage.SnapshotTxOptions)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	defer tx.Rollback()

	items := make([]BatchItemResult, len(inputs))
	outcomes := make([]*ingestOutcome, len(inputs))

	for i, input := range inputs {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		out, err := p.ingestWithin(ctx, tx, input, opts.Mode, now)
		if err != nil {
			return nil, err
		}
		outcomes[i] = out
		items[i] = BatchItemResult{Index: i, Result: &out.res}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Persistence(err)
	}

	for _, out := range outcomes {
		p.emit(ctx, out, now)
	}

	return &BatchResult{Items: items, SuccessCount: len(items)}, nil
}

// batchIngestPartial ingests records concurrently, each in its own
// transaction via Ingest, collecting per-item failures instead of aborting.
func (p *Pipeline) batchIngestPartial(ctx context.Context, inputs []domain.UsageIngestInput, opts BatchOptions, now time.Time) (*BatchResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	items := make([]BatchItemResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(gctx); err != nil {
					items[i] = BatchItemResult{Index: i, Err: err}
					return nil
				}
			}

			res, err := p.Ingest(gctx, input, opts.Mode, now)
			items[i] = BatchItemResult{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{Items: items}
	for _, it := range items {
		if it.Err != nil {
			out.FailureCount++
			out.errs = multierror.Append(out.errs, it.Err)
			continue
		}
		out.SuccessCount++
	}
	return out, nil
}

// UsageIDs extracts the successfully-ingested usage IDs, for callers that
// want to trigger a follow-up summarize over just what they ingested.
func (r *BatchResult) UsageIDs() []ids.ID {
	out := make([]ids.ID, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Result != nil {
			out = append(out, it.Result.UsageID)
		}
	}
	return out
}
