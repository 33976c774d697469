// Package seed ships illustrative built-in pricing tables for the core's
// built-in provider set, grounded on the teacher calculator.go's
// DefaultPricing map. It is data, not a behavioral change (spec §12
// feature 2): useful for tests and local development, never loaded
// implicitly in production.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/pricing"
)

// DefaultCurrency is the currency seed tables are priced in.
const DefaultCurrency = "USD"

type seedEntry struct {
	provider domain.Provider
	model    string
	input    string
	output   string
}

// defaults mirrors the teacher's DefaultPricing map's model coverage,
// translated from per-1K-token float rates to per-million decimal rates.
var defaults = []seedEntry{
	{domain.ProviderOpenAI, "gpt-4o", "5.00", "15.00"},
	{domain.ProviderOpenAI, "gpt-4o-mini", "0.15", "0.60"},
	{domain.ProviderOpenAI, "gpt-4-turbo", "10.00", "30.00"},
	{domain.ProviderOpenAI, "gpt-3.5-turbo", "0.50", "1.50"},
	{domain.ProviderAnthropic, "claude-3-opus", "15.00", "75.00"},
	{domain.ProviderAnthropic, "claude-3-sonnet", "3.00", "15.00"},
	{domain.ProviderAnthropic, "claude-3-haiku", "0.25", "1.25"},
	{domain.ProviderGoogle, "gemini-1.5-pro", "3.50", "10.50"},
	{domain.ProviderGoogle, "gemini-1.5-flash", "0.075", "0.30"},
}

// SeedDefaults inserts the built-in pricing set into store, effective at
// effectiveDate (defaulting to the Unix epoch if zero). clk is accepted but
// not read: the default date is fixed. Existing tables that would overlap a seed
// entry are left alone: the seed entry is skipped rather than surfacing
// an OverlapConflict, since seeding is idempotent-by-intent.
func SeedDefaults(ctx context.Context, store pricing.Store, clk clock.Clock, effectiveDate time.Time) error {
	if effectiveDate.IsZero() {
		effectiveDate = time.Unix(0, 0).UTC()
	}
	for _, entry := range defaults {
		table := &domain.PricingTable{
			Provider:      entry.provider,
			ModelName:     entry.model,
			EffectiveDate: effectiveDate,
			Currency:      DefaultCurrency,
			Structure: domain.PricingStructure{
				Kind: domain.StructurePerToken,
				PerToken: &domain.PerTokenStructure{
					InputPricePerMillion:  money.MustParse(entry.input),
					OutputPricePerMillion: money.MustParse(entry.output),
				},
			},
		}
		if err := store.Insert(ctx, table); err != nil {
			if errors.Is(err, errs.ErrPricingOverlapConflict) {
				continue
			}
			return err
		}
	}
	return nil
}
