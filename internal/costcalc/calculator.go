// Package costcalc implements the deterministic cost calculator (spec
// §4.3): it applies a resolved pricing structure to a normalized usage
// record and yields a cost record. It never reads the clock — callers
// supply calculatedAt — and never performs I/O, so identical inputs always
// produce byte-identical outputs (spec §8 property 4).
package costcalc

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/normalize"
)

// maxCoefficientDigits bounds the size of any intermediate decimal
// coefficient; beyond this an input is adversarial, not merely large, and
// the calculator returns ArithmeticOverflow rather than compute forever.
const maxCoefficientDigits = 80

// Calculator applies pricing structures to normalized usage. It is
// stateless and safe for concurrent use.
type Calculator struct {
	scale int32
	log   *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithScale overrides the monetary rounding scale (default money.DefaultScale).
func WithScale(scale int32) Option {
	return func(c *Calculator) { c.scale = scale }
}

// New builds a Calculator.
func New(opts ...Option) *Calculator {
	c := &Calculator{scale: money.DefaultScale, log: logx.WithComponent("costcalc")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate computes a CostRecord for usage priced under table, stamped
// with calculatedAt. If expectedCurrency is non-empty, it is checked
// against table.Currency and a PricingStructureMismatch is returned on
// conflict.
func (c *Calculator) Calculate(usage *domain.UsageRecord, table *domain.PricingTable, calculatedAt time.Time, expectedCurrency string) (*domain.CostRecord, error) {
	if usage == nil || table == nil {
		return nil, errs.Validation("usage_or_table", "must not be nil")
	}
	if expectedCurrency != "" && expectedCurrency != table.Currency {
		return nil, errs.PricingStructureMismatch("resolved pricing currency " + table.Currency + " does not match expected currency " + expectedCurrency)
	}

	n, err := normalize.Normalize(usage, table.Structure)
	if err != nil {
		return nil, err
	}

	var inputCost, outputCost money.Money
	switch table.Structure.Kind {
	case domain.StructurePerToken:
		inputCost, outputCost, err = perTokenCost(n, table.Structure.PerToken)
	case domain.StructurePerRequest:
		inputCost, outputCost, err = perRequestCost(n, table.Structure.PerRequest)
	case domain.StructureTiered:
		inputCost, outputCost, err = tieredStructureCost(n, table.Structure.Tiered)
	default:
		err = errs.PricingStructureMismatch("unknown pricing structure kind")
	}
	if err != nil {
		return nil, err
	}

	if !money.WithinDigitBudget(inputCost, maxCoefficientDigits) || !money.WithinDigitBudget(outputCost, maxCoefficientDigits) {
		return nil, errs.ArithmeticOverflow()
	}

	total := inputCost.Add(outputCost)
	record := &domain.CostRecord{
		ID:              ids.New(),
		UsageID:         usage.ID,
		InputCost:       money.RoundBank(inputCost, c.scale),
		OutputCost:      money.RoundBank(outputCost, c.scale),
		TotalCost:       money.RoundBank(total, c.scale),
		Currency:        table.Currency,
		PricingTableID:  table.ID,
		PricingSnapshot: table.Structure,
		CalculatedAt:    calculatedAt.UTC(),
	}
	c.log.Debug("cost.calculated", "usage_id", usage.ID, "pricing_table_id", table.ID, "total_cost", record.TotalCost.String())
	return record, nil
}

func perTokenCost(n domain.NormalizedUsage, s *domain.PerTokenStructure) (money.Money, money.Money, error) {
	if s == nil {
		return money.Zero(), money.Zero(), errs.PricingStructureMismatch("per_token structure missing its payload")
	}
	billable := money.PerMillion(n.BillableInputTokens, s.InputPricePerMillion)
	discounted := money.Zero()
	if n.DiscountedInputTokens > 0 {
		discounted = money.PerMillion(n.DiscountedInputTokens, s.InputPricePerMillion)
		if s.CachedInputDiscount != nil {
			retained := decimal.NewFromInt(1).Sub(*s.CachedInputDiscount)
			discounted = discounted.Mul(retained)
		}
	}
	inputCost := billable.Add(discounted)
	outputCost := money.PerMillion(n.OutputTokens+n.ReasoningTokens, s.OutputPricePerMillion)
	return inputCost, outputCost, nil
}

func perRequestCost(n domain.NormalizedUsage, s *domain.PerRequestStructure) (money.Money, money.Money, error) {
	if s == nil {
		return money.Zero(), money.Zero(), errs.PricingStructureMismatch("per_request structure missing its payload")
	}
	inputTokens := n.BillableInputTokens + n.DiscountedInputTokens
	outputTokens := n.OutputTokens + n.ReasoningTokens
	total := inputTokens + outputTokens

	if total <= s.IncludedTokens {
		return s.PricePerRequest, money.Zero(), nil
	}

	overage := total - s.IncludedTokens
	overageCost := money.PerMillion(overage, s.OveragePricePerMillion)

	if total == 0 {
		// unreachable: total == 0 always satisfies total <= IncludedTokens
		// above, even when IncludedTokens is 0; kept as a guard for the
		// division by total below.
		return s.PricePerRequest, money.Zero(), nil
	}

	totalDec := decimal.NewFromInt(int64(total))
	inputApportion := overageCost.Mul(decimal.NewFromInt(int64(inputTokens))).DivRound(totalDec, 50)
	outputApportion := overageCost.Sub(inputApportion)

	return s.PricePerRequest.Add(inputApportion), outputApportion, nil
}

func tieredStructureCost(n domain.NormalizedUsage, s *domain.TieredStructure) (money.Money, money.Money, error) {
	if s == nil || len(s.Tiers) == 0 {
		return money.Zero(), money.Zero(), errs.PricingStructureMismatch("tiered structure must have at least one tier")
	}
	inputTokens := n.BillableInputTokens + n.DiscountedInputTokens
	outputTokens := n.OutputTokens + n.ReasoningTokens

	inputCost := tieredCost(inputTokens, s.Tiers, func(t domain.Tier) money.Money { return t.InputPricePerMillion })
	outputCost := tieredCost(outputTokens, s.Tiers, func(t domain.Tier) money.Money { return t.OutputPricePerMillion })
	return inputCost, outputCost, nil
}

// tieredCost prices tokens cumulatively: tier i covers the window
// [tiers[i].ThresholdTokens, tiers[i+1].ThresholdTokens) or, for the last
// tier, [tiers[i].ThresholdTokens, +inf).
func tieredCost(tokens uint64, tiers []domain.Tier, pricePerMillion func(domain.Tier) money.Money) money.Money {
	total := money.Zero()
	for i, tier := range tiers {
		lo := tier.ThresholdTokens
		if tokens <= lo {
			continue
		}
		hi := uint64(1<<63 - 1)
		if i+1 < len(tiers) {
			hi = tiers[i+1].ThresholdTokens
		}
		upper := tokens
		if upper > hi {
			upper = hi
		}
		amount := upper - lo
		total = total.Add(money.PerMillion(amount, pricePerMillion(tier)))
	}
	return total
}
