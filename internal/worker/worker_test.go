package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(ctx context.Context, e events.Event) {
	r.events = append(r.events, e)
}

type fakeUsageRepo struct {
	byID map[ids.ID]domain.UsageRecord
}

func (f *fakeUsageRepo) Insert(ctx context.Context, q storage.Querier, u *domain.UsageRecord) (bool, error) {
	f.byID[u.ID] = *u
	return true, nil
}
func (f *fakeUsageRepo) GetByID(ctx context.Context, q storage.Querier, id ids.ID) (*domain.UsageRecord, error) {
	if u, ok := f.byID[id]; ok {
		return &u, nil
	}
	return nil, nil
}
func (f *fakeUsageRepo) List(ctx context.Context, q storage.Querier, filter storage.UsageFilter, page storage.Page) ([]domain.UsageRecord, error) {
	return nil, nil
}
func (f *fakeUsageRepo) ListByPricingScope(ctx context.Context, q storage.Querier, provider domain.Provider, model string, start time.Time, end *time.Time) ([]domain.UsageRecord, error) {
	return nil, nil
}

type fakeCostRepo struct {
	records []domain.CostRecord
	pending []ids.ID
}

func (f *fakeCostRepo) Insert(ctx context.Context, q storage.Querier, c *domain.CostRecord) error {
	f.records = append(f.records, *c)
	for i, id := range f.pending {
		if id == c.UsageID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return nil
}
func (f *fakeCostRepo) CurrentByUsageID(ctx context.Context, q storage.Querier, usageID ids.ID) (*domain.CostRecord, error) {
	return nil, nil
}
func (f *fakeCostRepo) ListCurrent(ctx context.Context, q storage.Querier, filter storage.CostFilter, page storage.Page) ([]domain.CostRecord, error) {
	return f.records, nil
}
func (f *fakeCostRepo) PendingUsageIDs(ctx context.Context, q storage.Querier, limit int) ([]ids.ID, error) {
	if limit > 0 && limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

type fakePricingRepo struct {
	table *domain.PricingTable
}

func (f *fakePricingRepo) Insert(ctx context.Context, q storage.Querier, table *domain.PricingTable) error {
	f.table = table
	return nil
}
func (f *fakePricingRepo) Close(ctx context.Context, q storage.Querier, previousID ids.ID, endDate time.Time) error {
	return nil
}
func (f *fakePricingRepo) Resolve(ctx context.Context, q storage.Querier, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	if f.table == nil || f.table.Provider != provider || f.table.ModelName != model {
		return nil, errs.PricingNotFound(string(provider), model, at, "")
	}
	return f.table, nil
}
func (f *fakePricingRepo) List(ctx context.Context, q storage.Querier, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	return nil, nil
}
func (f *fakePricingRepo) OverlappingIntervals(ctx context.Context, q storage.Querier, provider domain.Provider, model string, region *string, effective time.Time, end *time.Time) ([]domain.PricingTable, error) {
	return nil, nil
}

func pricingFixture() *domain.PricingTable {
	return &domain.PricingTable{
		ID:            ids.New(),
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
}

func usageFixture() domain.UsageRecord {
	return domain.UsageRecord{
		ID:               ids.New(),
		Timestamp:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Provider:         domain.ProviderOpenAI,
		Model:            domain.ModelDescriptor{Name: "gpt-4o", ContextWindow: 128000},
		OrganizationID:   "org-1",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
	}
}

func TestWorker_ProcessOnce_PricesPendingUsage(t *testing.T) {
	ctx := context.Background()
	u := usageFixture()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u.ID: u}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u.ID}}
	pricingRepo := &fakePricingRepo{table: pricingFixture()}
	calc := costcalc.New()

	w := New(nil, usageRepo, costRepo, pricingRepo, calc)
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, costRepo.records, 1)
	assert.Equal(t, u.ID, costRepo.records[0].UsageID)
	assert.False(t, costRepo.records[0].TotalCost.IsZero())
	assert.Empty(t, costRepo.pending)
}

func TestWorker_ProcessOnce_EmitsPricingResolvedAndCostCalculated(t *testing.T) {
	ctx := context.Background()
	u := usageFixture()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u.ID: u}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u.ID}}
	pricingRepo := &fakePricingRepo{table: pricingFixture()}
	calc := costcalc.New()
	sink := &recordingSink{}

	w := New(nil, usageRepo, costRepo, pricingRepo, calc, WithSink(sink))
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sink.events, 2)
	assert.Equal(t, events.TypePricingResolved, sink.events[0].Type)
	assert.Equal(t, events.TypeCostCalculated, sink.events[1].Type)
}

func TestWorker_ProcessOnce_SkipsUnresolvablePricing(t *testing.T) {
	ctx := context.Background()
	u := usageFixture()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u.ID: u}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u.ID}}
	pricingRepo := &fakePricingRepo{} // no table registered
	calc := costcalc.New()

	w := New(nil, usageRepo, costRepo, pricingRepo, calc)
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, costRepo.records)
}

func TestImmediateRunner_DrainsUntilDry(t *testing.T) {
	ctx := context.Background()
	u1 := usageFixture()
	u2 := usageFixture()
	u2.ID = ids.New()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u1.ID: u1, u2.ID: u2}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u1.ID, u2.ID}}
	pricingRepo := &fakePricingRepo{table: pricingFixture()}
	calc := costcalc.New()

	r := NewImmediateRunner(nil, usageRepo, costRepo, pricingRepo, calc, 10)
	total, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Empty(t, costRepo.pending)
}

func TestWorker_ForceDrain_DrainsWithoutStartingLoop(t *testing.T) {
	ctx := context.Background()
	u1 := usageFixture()
	u2 := usageFixture()
	u2.ID = ids.New()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u1.ID: u1, u2.ID: u2}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u1.ID, u2.ID}}
	pricingRepo := &fakePricingRepo{table: pricingFixture()}
	calc := costcalc.New()

	w := New(nil, usageRepo, costRepo, pricingRepo, calc)
	total, err := w.ForceDrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Empty(t, costRepo.pending)
	assert.False(t, w.Stats().Running)
}

func TestWorker_ProcessOnce_UsesInjectedClockForCalculatedAt(t *testing.T) {
	ctx := context.Background()
	u := usageFixture()
	usageRepo := &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{u.ID: u}}
	costRepo := &fakeCostRepo{pending: []ids.ID{u.ID}}
	pricingRepo := &fakePricingRepo{table: pricingFixture()}
	calc := costcalc.New()
	pinned := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	w := New(nil, usageRepo, costRepo, pricingRepo, calc, WithClock(clock.NewManual(pinned)))
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, costRepo.records, 1)
	assert.True(t, costRepo.records[0].CalculatedAt.Equal(pinned))
}

func TestWorker_StatsReflectsLastRun(t *testing.T) {
	pinned := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	w := New(nil, &fakeUsageRepo{byID: map[ids.ID]domain.UsageRecord{}}, &fakeCostRepo{}, &fakePricingRepo{}, costcalc.New(), WithBatchSize(5), WithClock(clock.NewManual(pinned)))
	stats := w.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 5, stats.BatchSize)
	assert.Nil(t, stats.LastProcessedAt)

	w.ctx = context.Background()
	w.processBatch()
	stats = w.Stats()
	require.NotNil(t, stats.LastProcessedAt)
	assert.True(t, stats.LastProcessedAt.Equal(pinned))
	assert.Equal(t, 0, stats.LastProcessedCount)
}
