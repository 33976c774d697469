package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

func flatStructure() domain.PricingStructure {
	return domain.PricingStructure{
		Kind:     domain.StructurePerToken,
		PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.MustParse("1"), OutputPricePerMillion: money.MustParse("2")},
	}
}

func TestScenarioE_OverlapRejectionThenCloseSucceeds(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	existing := &domain.PricingTable{
		Provider:      domain.ProviderOpenAI,
		ModelName:     "gpt-4",
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
		Structure:     flatStructure(),
	}
	require.NoError(t, s.Insert(ctx, existing))

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	overlapping := &domain.PricingTable{
		Provider:      domain.ProviderOpenAI,
		ModelName:     "gpt-4",
		EffectiveDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       &end,
		Currency:      "USD",
		Structure:     flatStructure(),
	}
	err := s.Insert(ctx, overlapping)
	require.Error(t, err)

	closeAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Close(ctx, existing.ID, closeAt))

	require.NoError(t, s.Insert(ctx, overlapping))
}

func TestScenarioD_PricingNotFoundThenResolves(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Resolve(ctx, domain.ProviderOpenAI, "gpt-5-hypo", at, nil)
	require.Error(t, err)

	table := &domain.PricingTable{
		Provider:      domain.ProviderOpenAI,
		ModelName:     "gpt-5-hypo",
		EffectiveDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
		Structure:     flatStructure(),
	}
	require.NoError(t, s.Insert(ctx, table))

	resolved, err := s.Resolve(ctx, domain.ProviderOpenAI, "gpt-5-hypo", at, nil)
	require.NoError(t, err)
	assert.Equal(t, table.ID, resolved.ID)
}

func TestResolve_RegionTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	at := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	region := "us-east"

	generic := &domain.PricingTable{
		Provider: domain.ProviderAWS, ModelName: "titan", EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "USD", Structure: flatStructure(),
	}
	require.NoError(t, s.Insert(ctx, generic))

	regional := &domain.PricingTable{
		Provider: domain.ProviderAWS, ModelName: "titan", EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "USD", Structure: flatStructure(), Region: &region,
	}
	require.NoError(t, s.Insert(ctx, regional))

	resolved, err := s.Resolve(ctx, domain.ProviderAWS, "titan", at, &region)
	require.NoError(t, err)
	assert.Equal(t, regional.ID, resolved.ID)

	resolvedGeneric, err := s.Resolve(ctx, domain.ProviderAWS, "titan", at, nil)
	require.NoError(t, err)
	assert.Equal(t, generic.ID, resolvedGeneric.ID)
}

func TestResolve_ModelNormalizationFallback(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	table := &domain.PricingTable{
		Provider: domain.ProviderOpenAI, ModelName: "gpt-4o", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "USD", Structure: flatStructure(),
	}
	require.NoError(t, s.Insert(ctx, table))

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	resolved, err := s.Resolve(ctx, domain.ProviderOpenAI, "openai/gpt-4o-2024-08-06", at, nil)
	require.NoError(t, err)
	assert.Equal(t, table.ID, resolved.ID)
}

func TestPricingIntervalCoverage_Property(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	end1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, &domain.PricingTable{
		Provider: domain.ProviderAnthropic, ModelName: "claude", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate: &end1, Currency: "USD", Structure: flatStructure(),
	}))
	require.NoError(t, s.Insert(ctx, &domain.PricingTable{
		Provider: domain.ProviderAnthropic, ModelName: "claude", EffectiveDate: end1,
		Currency: "USD", Structure: flatStructure(),
	}))

	probes := []time.Time{
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		end1,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, probe := range probes {
		_, err := s.Resolve(ctx, domain.ProviderAnthropic, "claude", probe, nil)
		if probe.Before(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			require.Error(t, err)
		} else {
			require.NoError(t, err, "probe=%s", probe)
		}
	}
}

func TestInsert_RejectsInvalidStructure(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	bad := &domain.PricingTable{
		Provider: domain.ProviderOpenAI, ModelName: "x", EffectiveDate: time.Now(),
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind:   domain.StructureTiered,
			Tiered: &domain.TieredStructure{Tiers: []domain.Tier{{ThresholdTokens: 5}}},
		},
	}
	require.Error(t, s.Insert(ctx, bad))
}

func TestList_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, &domain.PricingTable{Provider: domain.ProviderOpenAI, ModelName: "m", EffectiveDate: t1, EndDate: &t2, Currency: "USD", Structure: flatStructure()}))
	require.NoError(t, s.Insert(ctx, &domain.PricingTable{Provider: domain.ProviderOpenAI, ModelName: "m", EffectiveDate: t2, Currency: "USD", Structure: flatStructure()}))

	provider := domain.ProviderOpenAI
	rows, err := s.List(ctx, &provider, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].EffectiveDate.Before(rows[1].EffectiveDate))
}
