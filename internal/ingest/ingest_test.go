package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage/sqlite"
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(ctx context.Context, e events.Event) {
	r.events = append(r.events, e)
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPricing(t *testing.T, db *sqlite.DB) {
	t.Helper()
	table := &domain.PricingTable{
		Provider:      domain.ProviderOpenAI,
		ModelName:     "gpt-4o",
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{
				InputPricePerMillion:  money.MustParse("5.00"),
				OutputPricePerMillion: money.MustParse("15.00"),
			},
		},
	}
	require.NoError(t, db.Pricing.Insert(context.Background(), db.SQL, table))
}

func usageInput() domain.UsageIngestInput {
	return domain.UsageIngestInput{
		Timestamp:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Provider:         domain.ProviderOpenAI,
		Model:            domain.ModelDescriptor{Name: "gpt-4o", ContextWindow: 128000},
		OrganizationID:   "org-1",
		PromptTokens:     1000,
		CompletionTokens: 500,
	}
}

func TestIngest_SyncPricesImmediately(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	res, err := p.Ingest(ctx, usageInput(), Sync, now)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.True(t, res.Priced)

	cost, err := db.Cost.CurrentByUsageID(ctx, db.SQL, res.UsageID)
	require.NoError(t, err)
	require.NotNil(t, cost)
	assert.False(t, cost.Pending)
	assert.False(t, cost.TotalCost.IsZero())
}

func TestIngest_SyncEmitsUsageIngestedPricingResolvedAndCostCalculated(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)
	sink := &recordingSink{}

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New(), WithSink(sink))
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	_, err := p.Ingest(ctx, usageInput(), Sync, now)
	require.NoError(t, err)

	require.Len(t, sink.events, 3)
	assert.Equal(t, events.TypeUsageIngested, sink.events[0].Type)
	assert.Equal(t, events.TypePricingResolved, sink.events[1].Type)
	assert.Equal(t, events.TypeCostCalculated, sink.events[2].Type)
}

func TestIngest_AsyncEmitsOnlyUsageIngested(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)
	sink := &recordingSink{}

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New(), WithSink(sink))
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	_, err := p.Ingest(ctx, usageInput(), Async, now)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, events.TypeUsageIngested, sink.events[0].Type)
}

func TestIngest_AsyncLeavesRecordPending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	res, err := p.Ingest(ctx, usageInput(), Async, now)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.False(t, res.Priced)

	pending, err := db.Cost.PendingUsageIDs(ctx, db.SQL, 10)
	require.NoError(t, err)
	assert.Contains(t, pending, res.UsageID)
}

func TestIngest_DuplicateIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	input := usageInput()
	first, err := p.Ingest(ctx, input, Sync, now)
	require.NoError(t, err)

	input.ID = first.UsageID
	second, err := p.Ingest(ctx, input, Sync, now)
	require.NoError(t, err)
	assert.False(t, second.Inserted)
	assert.Equal(t, first.UsageID, second.UsageID)
}

func TestIngest_SyncUnresolvablePricingFailsTheWholeIngest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	// No pricing table seeded.

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	res, err := p.Ingest(ctx, usageInput(), Sync, now)
	require.Error(t, err)
	assert.Nil(t, res)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.KindPricingNotFound, e.Kind)
}

func TestIngest_AsyncUnresolvablePricingLeavesRecordPending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	// No pricing table seeded.

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	res, err := p.Ingest(ctx, usageInput(), Async, now)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.False(t, res.Priced)
}

func TestBatchIngest_PartialOKCollectsFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	good := usageInput()
	bad := usageInput()
	bad.OrganizationID = "" // fails domain.NewUsageRecord validation

	res, err := p.BatchIngest(ctx, []domain.UsageIngestInput{good, bad}, BatchOptions{Mode: Sync, PartialOK: true}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Len(t, res.UsageIDs(), 1)
}

func TestBatchIngest_NonPartialFailureRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedPricing(t, db)

	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())
	now := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)

	good := usageInput()
	bad := usageInput()
	bad.OrganizationID = "" // fails domain.NewUsageRecord validation

	res, err := p.BatchIngest(ctx, []domain.UsageIngestInput{good, bad}, BatchOptions{Mode: Sync, PartialOK: false}, now)
	require.Error(t, err)
	assert.Nil(t, res)

	rows, err := db.Usage.List(ctx, db.SQL, storage.UsageFilter{OrganizationID: "org-1"}, storage.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows, "the good record must not remain committed once the batch fails")
}

func TestBatchIngest_ExceedsMaxSize(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := New(db.SQL, db.Usage, db.Cost, db.Pricing, costcalc.New())

	inputs := make([]domain.UsageIngestInput, 3)
	for i := range inputs {
		inputs[i] = usageInput()
	}

	_, err := p.BatchIngest(ctx, inputs, BatchOptions{MaxSize: 2}, time.Now())
	require.Error(t, err)
}
