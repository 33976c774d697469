package domain

import (
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// NormalizedUsage is the output of the token normalizer (spec §4.2): a
// usage record projected onto the accounting categories a pricing
// structure consumes.
type NormalizedUsage struct {
	BillableInputTokens   uint64
	DiscountedInputTokens uint64
	OutputTokens          uint64
	ReasoningTokens       uint64
	RequestCount          int
}

// CostRecord is the derived, immutable output of the cost calculator
// (spec §3). Recalculation produces a new CostRecord that supersedes the
// prior one by CalculatedAt; it is never updated in place.
type CostRecord struct {
	ID              ids.ID
	UsageID         ids.ID
	InputCost       money.Money
	OutputCost      money.Money
	TotalCost       money.Money
	Currency        string
	PricingTableID  ids.ID
	PricingSnapshot PricingStructure
	CalculatedAt    time.Time
	Pending         bool
}
