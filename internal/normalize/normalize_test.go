package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
)

func u64(v uint64) *uint64 { return &v }

func TestNormalize_SplitsCachedAndReasoning(t *testing.T) {
	usage := &domain.UsageRecord{
		ID:               ids.New(),
		PromptTokens:     1000,
		CompletionTokens: 500,
		CachedTokens:     u64(400),
		ReasoningTokens:  u64(50),
	}
	n, err := Normalize(usage, domain.PricingStructure{Kind: domain.StructurePerToken})
	require.NoError(t, err)
	assert.Equal(t, uint64(600), n.BillableInputTokens)
	assert.Equal(t, uint64(400), n.DiscountedInputTokens)
	assert.Equal(t, uint64(500), n.OutputTokens)
	assert.Equal(t, uint64(50), n.ReasoningTokens)
	assert.Equal(t, 1, n.RequestCount)
}

func TestNormalize_NoCached(t *testing.T) {
	usage := &domain.UsageRecord{PromptTokens: 1000, CompletionTokens: 500}
	n, err := Normalize(usage, domain.PricingStructure{Kind: domain.StructurePerToken})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n.BillableInputTokens)
	assert.Equal(t, uint64(0), n.DiscountedInputTokens)
}

func TestNormalize_CachedExceedsPrompt(t *testing.T) {
	usage := &domain.UsageRecord{PromptTokens: 100, CachedTokens: u64(200)}
	_, err := Normalize(usage, domain.PricingStructure{Kind: domain.StructurePerToken})
	require.Error(t, err)
}

func TestNormalize_NilUsage(t *testing.T) {
	_, err := Normalize(nil, domain.PricingStructure{})
	require.Error(t, err)
}
