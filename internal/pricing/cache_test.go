package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
)

func TestCachingStore_ResolveAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemoryStore()
	cached := NewCachingStore(inner)

	table := &domain.PricingTable{
		Provider: domain.ProviderOpenAI, ModelName: "gpt-4o", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "USD", Structure: flatStructure(),
	}
	require.NoError(t, cached.Insert(ctx, table))

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	resolved, err := cached.Resolve(ctx, domain.ProviderOpenAI, "gpt-4o", at, nil)
	require.NoError(t, err)
	assert.Equal(t, table.ID, resolved.ID)

	// warm cache again, should hit cache path (no error either way)
	resolved2, err := cached.Resolve(ctx, domain.ProviderOpenAI, "gpt-4o", at, nil)
	require.NoError(t, err)
	assert.Equal(t, table.ID, resolved2.ID)

	require.NoError(t, cached.Close(ctx, table.ID, at.Add(24*time.Hour)))
	_, err = cached.Resolve(ctx, domain.ProviderOpenAI, "gpt-4o", at.Add(48*time.Hour), nil)
	require.Error(t, err)
}
