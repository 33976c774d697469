// Package normalize implements the token normalizer (spec §4.2): it
// projects a raw usage record onto the accounting categories a pricing
// structure consumes, splitting cached/discounted input out of the prompt
// count and carrying reasoning tokens as their own category, separate from
// output (the calculator adds them to output when it prices).
package normalize

import (
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
)

// Normalize projects usage onto NormalizedUsage. structure is accepted for
// forward compatibility with a future reasoning-specific price (spec §4.2
// notes none is currently defined) but does not otherwise affect the
// split performed here.
func Normalize(usage *domain.UsageRecord, structure domain.PricingStructure) (domain.NormalizedUsage, error) {
	if usage == nil {
		return domain.NormalizedUsage{}, errs.Validation("usage", "must not be nil")
	}

	cached := uint64(0)
	if usage.CachedTokens != nil {
		cached = *usage.CachedTokens
	}
	if cached > usage.PromptTokens {
		return domain.NormalizedUsage{}, errs.Validation("cached_tokens", "must not exceed prompt_tokens")
	}

	reasoning := uint64(0)
	if usage.ReasoningTokens != nil {
		reasoning = *usage.ReasoningTokens
	}

	return domain.NormalizedUsage{
		BillableInputTokens:   usage.PromptTokens - cached,
		DiscountedInputTokens: cached,
		OutputTokens:          usage.CompletionTokens,
		ReasoningTokens:       reasoning,
		RequestCount:          1,
	}, nil
}
