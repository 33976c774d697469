package costcalc

import (
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// CostEstimate is the pre-flight output of Estimate: the same pricing math
// as Calculate, run against hypothetical token counts with no persisted
// usage record and no pricing-table currency check. Grounded on the
// teacher's Calculator.EstimateCost.
type CostEstimate struct {
	InputCost  money.Money
	OutputCost money.Money
	TotalCost  money.Money
	Currency   string
}

// Estimate prices a hypothetical request shape against structure without
// requiring a persisted UsageRecord, for callers that want to show a cost
// estimate before issuing a request. Pure function: no persistence, no
// clock, no identifiers minted.
func (c *Calculator) Estimate(structure domain.PricingStructure, currency string, estimatedPromptTokens, estimatedMaxCompletionTokens uint64) (CostEstimate, error) {
	n := domain.NormalizedUsage{
		BillableInputTokens: estimatedPromptTokens,
		OutputTokens:        estimatedMaxCompletionTokens,
		RequestCount:        1,
	}

	var inputCost, outputCost money.Money
	var err error
	switch structure.Kind {
	case domain.StructurePerToken:
		inputCost, outputCost, err = perTokenCost(n, structure.PerToken)
	case domain.StructurePerRequest:
		inputCost, outputCost, err = perRequestCost(n, structure.PerRequest)
	case domain.StructureTiered:
		inputCost, outputCost, err = tieredStructureCost(n, structure.Tiered)
	default:
		err = errs.PricingStructureMismatch("unknown pricing structure kind")
	}
	if err != nil {
		return CostEstimate{}, err
	}

	return CostEstimate{
		InputCost:  money.RoundBank(inputCost, c.scale),
		OutputCost: money.RoundBank(outputCost, c.scale),
		TotalCost:  money.RoundBank(inputCost.Add(outputCost), c.scale),
		Currency:   currency,
	}, nil
}
