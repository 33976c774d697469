package costcalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

func u64(v uint64) *uint64 { return &v }

func mustDecimal(t *testing.T, s string) money.Money {
	t.Helper()
	d, err := money.Parse(s)
	require.NoError(t, err)
	return d
}

func TestScenarioA_PerToken(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		ID:        ids.New(),
		Currency:  "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{
				InputPricePerMillion:  money.MustParse("10.0"),
				OutputPricePerMillion: money.MustParse("30.0"),
			},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New(), PromptTokens: 1000, CompletionTokens: 500}

	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.InputCost.Equal(mustDecimal(t, "0.0100000000")), "input_cost=%s", rec.InputCost)
	assert.True(t, rec.OutputCost.Equal(mustDecimal(t, "0.0150000000")), "output_cost=%s", rec.OutputCost)
	assert.True(t, rec.TotalCost.Equal(mustDecimal(t, "0.0250000000")), "total_cost=%s", rec.TotalCost)
}

func TestScenarioB_CachedDiscount(t *testing.T) {
	calc := New()
	discount := money.MustParse("0.5")
	table := &domain.PricingTable{
		ID:       ids.New(),
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{
				InputPricePerMillion:  money.MustParse("10.0"),
				OutputPricePerMillion: money.MustParse("30.0"),
				CachedInputDiscount:   &discount,
			},
		},
	}
	usage := &domain.UsageRecord{
		ID: ids.New(), PromptTokens: 1000, CompletionTokens: 500, CachedTokens: u64(400),
	}

	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.InputCost.Equal(mustDecimal(t, "0.0080000000")), "input_cost=%s", rec.InputCost)
	assert.True(t, rec.OutputCost.Equal(mustDecimal(t, "0.0150000000")), "output_cost=%s", rec.OutputCost)
	assert.True(t, rec.TotalCost.Equal(mustDecimal(t, "0.0230000000")), "total_cost=%s", rec.TotalCost)
}

func TestScenarioC_Tiered(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		ID:       ids.New(),
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructureTiered,
			Tiered: &domain.TieredStructure{
				Tiers: []domain.Tier{
					{ThresholdTokens: 0, InputPricePerMillion: money.MustParse("10"), OutputPricePerMillion: money.MustParse("30")},
					{ThresholdTokens: 1_000_000, InputPricePerMillion: money.MustParse("8"), OutputPricePerMillion: money.MustParse("24")},
				},
			},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New(), PromptTokens: 1_500_000, CompletionTokens: 0}

	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.InputCost.Equal(mustDecimal(t, "14.0000000000")), "input_cost=%s", rec.InputCost)
	assert.True(t, rec.OutputCost.Equal(mustDecimal(t, "0.0000000000")), "output_cost=%s", rec.OutputCost)
	assert.True(t, rec.TotalCost.Equal(mustDecimal(t, "14.0000000000")), "total_cost=%s", rec.TotalCost)
}

func TestCalculate_CurrencyMismatch(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "EUR",
		Structure: domain.PricingStructure{
			Kind:     domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.Zero(), OutputPricePerMillion: money.Zero()},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New()}
	_, err := calc.Calculate(usage, table, time.Unix(0, 0), "USD")
	require.Error(t, err)
}

func TestCalculate_Determinism(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind:     domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.MustParse("5"), OutputPricePerMillion: money.MustParse("15")},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New(), PromptTokens: 777, CompletionTokens: 333}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := calc.Calculate(usage, table, at, "")
	require.NoError(t, err)
	b, err := calc.Calculate(usage, table, at, "")
	require.NoError(t, err)
	assert.True(t, a.TotalCost.Equal(b.TotalCost))
	assert.True(t, a.InputCost.Equal(b.InputCost))
	assert.True(t, a.OutputCost.Equal(b.OutputCost))
}

func TestPerRequest_UnderIncluded(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerRequest,
			PerRequest: &domain.PerRequestStructure{
				PricePerRequest:        money.MustParse("1.00"),
				IncludedTokens:         10000,
				OveragePricePerMillion: money.MustParse("5"),
			},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New(), PromptTokens: 2000, CompletionTokens: 1000}
	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.TotalCost.Equal(mustDecimal(t, "1.0000000000")))
	assert.True(t, rec.OutputCost.IsZero())
}

func TestPerRequest_OverageApportioned(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerRequest,
			PerRequest: &domain.PerRequestStructure{
				PricePerRequest:        money.MustParse("1.00"),
				IncludedTokens:         1000,
				OveragePricePerMillion: money.MustParse("10"),
			},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New(), PromptTokens: 1500, CompletionTokens: 500}
	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.InputCost.Add(rec.OutputCost).Equal(rec.TotalCost))
	assert.True(t, rec.TotalCost.GreaterThan(mustDecimal(t, "1.00")))
}

func TestMonotonicity_InTokens(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind:     domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.MustParse("3"), OutputPricePerMillion: money.MustParse("9")},
		},
	}
	low := &domain.UsageRecord{ID: ids.New(), PromptTokens: 100, CompletionTokens: 50}
	high := &domain.UsageRecord{ID: ids.New(), PromptTokens: 200, CompletionTokens: 50}

	recLow, err := calc.Calculate(low, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	recHigh, err := calc.Calculate(high, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, recHigh.TotalCost.GreaterThanOrEqual(recLow.TotalCost))
}

func TestZeroUsage_PerToken(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind:     domain.StructurePerToken,
			PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.MustParse("3"), OutputPricePerMillion: money.MustParse("9")},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New()}
	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.TotalCost.IsZero())
}

func TestZeroUsage_PerRequest(t *testing.T) {
	calc := New()
	table := &domain.PricingTable{
		Currency: "USD",
		Structure: domain.PricingStructure{
			Kind: domain.StructurePerRequest,
			PerRequest: &domain.PerRequestStructure{
				PricePerRequest:        money.MustParse("2.50"),
				IncludedTokens:         100,
				OveragePricePerMillion: money.MustParse("1"),
			},
		},
	}
	usage := &domain.UsageRecord{ID: ids.New()}
	rec, err := calc.Calculate(usage, table, time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.True(t, rec.TotalCost.Equal(money.MustParse("2.50")))
}

func TestEstimate_MatchesCalculate(t *testing.T) {
	calc := New()
	structure := domain.PricingStructure{
		Kind:     domain.StructurePerToken,
		PerToken: &domain.PerTokenStructure{InputPricePerMillion: money.MustParse("10"), OutputPricePerMillion: money.MustParse("30")},
	}
	est, err := calc.Estimate(structure, "USD", 1000, 500)
	require.NoError(t, err)
	assert.True(t, est.TotalCost.Equal(mustDecimal(t, "0.0250000000")))
}

func TestSanitizer_FlagsNegative(t *testing.T) {
	s := NewSanitizer(DefaultSuspiciousCostThreshold)
	rec := &domain.CostRecord{InputCost: money.MustParse("-1"), OutputCost: money.Zero(), TotalCost: money.MustParse("-1")}
	require.Error(t, s.Sanity(rec))
}

func TestSanitizer_PassesConsistentRecord(t *testing.T) {
	s := NewSanitizer(DefaultSuspiciousCostThreshold)
	rec := &domain.CostRecord{InputCost: money.MustParse("1"), OutputCost: money.MustParse("2"), TotalCost: money.MustParse("3")}
	require.NoError(t, s.Sanity(rec))
}
