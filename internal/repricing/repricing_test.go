package repricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type fakeUsageRepo struct {
	scoped []domain.UsageRecord
}

func (f *fakeUsageRepo) Insert(ctx context.Context, q storage.Querier, u *domain.UsageRecord) (bool, error) {
	return true, nil
}
func (f *fakeUsageRepo) GetByID(ctx context.Context, q storage.Querier, id ids.ID) (*domain.UsageRecord, error) {
	return nil, nil
}
func (f *fakeUsageRepo) List(ctx context.Context, q storage.Querier, filter storage.UsageFilter, page storage.Page) ([]domain.UsageRecord, error) {
	return nil, nil
}
func (f *fakeUsageRepo) ListByPricingScope(ctx context.Context, q storage.Querier, provider domain.Provider, model string, start time.Time, end *time.Time) ([]domain.UsageRecord, error) {
	return f.scoped, nil
}

type fakeCostRepo struct {
	inserted []domain.CostRecord
}

func (f *fakeCostRepo) Insert(ctx context.Context, q storage.Querier, c *domain.CostRecord) error {
	f.inserted = append(f.inserted, *c)
	return nil
}
func (f *fakeCostRepo) CurrentByUsageID(ctx context.Context, q storage.Querier, usageID ids.ID) (*domain.CostRecord, error) {
	return nil, nil
}
func (f *fakeCostRepo) ListCurrent(ctx context.Context, q storage.Querier, filter storage.CostFilter, page storage.Page) ([]domain.CostRecord, error) {
	return f.inserted, nil
}
func (f *fakeCostRepo) PendingUsageIDs(ctx context.Context, q storage.Querier, limit int) ([]ids.ID, error) {
	return nil, nil
}

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(ctx context.Context, e events.Event) {
	r.events = append(r.events, e)
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

func TestScanner_Rescan_RecomputesEveryScopedRecord(t *testing.T) {
	ctx := context.Background()
	u1, u2 := usageFixture(), usageFixture()
	usageRepo := &fakeUsageRepo{scoped: []domain.UsageRecord{u1, u2}}
	costRepo := &fakeCostRepo{}
	sink := &recordingSink{}

	s := New(nil, usageRepo, costRepo, costcalc.New(), WithSink(sink))
	result, err := s.Rescan(ctx, pricingFixture())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Recomputed)
	require.Len(t, costRepo.inserted, 2)
	assert.Equal(t, u1.ID, costRepo.inserted[0].UsageID)

	require.Len(t, sink.events, 2)
	assert.Equal(t, events.TypeCostCalculated, sink.events[0].Type)
}

func TestScanner_Rescan_NoScopedRecordsIsNoop(t *testing.T) {
	ctx := context.Background()
	usageRepo := &fakeUsageRepo{}
	costRepo := &fakeCostRepo{}

	s := New(nil, usageRepo, costRepo, costcalc.New())
	result, err := s.Rescan(ctx, pricingFixture())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Recomputed)
	assert.Empty(t, costRepo.inserted)
}

func TestScanner_Rescan_UsesInjectedClockForCalculatedAt(t *testing.T) {
	ctx := context.Background()
	usageRepo := &fakeUsageRepo{scoped: []domain.UsageRecord{usageFixture()}}
	costRepo := &fakeCostRepo{}
	pinned := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	s := New(nil, usageRepo, costRepo, costcalc.New(), WithClock(clock.NewManual(pinned)))
	_, err := s.Rescan(ctx, pricingFixture())
	require.NoError(t, err)
	require.Len(t, costRepo.inserted, 1)
	assert.True(t, costRepo.inserted[0].CalculatedAt.Equal(pinned))
}

func TestScanner_Rescan_CancelledContextStops(t *testing.T) {
	usageRepo := &fakeUsageRepo{scoped: []domain.UsageRecord{usageFixture()}}
	costRepo := &fakeCostRepo{}

	s := New(nil, usageRepo, costRepo, costcalc.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Rescan(ctx, pricingFixture())
	require.Error(t, err)
}
