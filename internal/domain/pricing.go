package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// StructureKind tags which PricingStructure variant is populated. The
// calculator dispatches on this tag rather than on a virtual hierarchy
// (spec §9 "tagged variants over inheritance").
type StructureKind string

const (
	StructurePerToken   StructureKind = "per_token"
	StructurePerRequest StructureKind = "per_request"
	StructureTiered     StructureKind = "tiered"
)

// PerTokenStructure prices input and output tokens independently, with an
// optional discount applied to cached/reused input tokens.
type PerTokenStructure struct {
	InputPricePerMillion  money.Money
	OutputPricePerMillion money.Money
	CachedInputDiscount   *decimal.Decimal // fraction in [0,1]; nil means no discount
}

// PerRequestStructure charges a flat price per request up to IncludedTokens,
// with overage billed per-million beyond that.
type PerRequestStructure struct {
	PricePerRequest        money.Money
	IncludedTokens         uint64
	OveragePricePerMillion money.Money
}

// Tier is one band of a TieredStructure's cumulative token schedule.
type Tier struct {
	ThresholdTokens       uint64
	InputPricePerMillion  money.Money
	OutputPricePerMillion money.Money
}

// TieredStructure prices tokens cumulatively against strictly increasing
// thresholds, the first of which must start at 0.
type TieredStructure struct {
	Tiers []Tier
}

// PricingStructure is the spec §3 tagged variant. Exactly one of PerToken,
// PerRequest, Tiered is populated, selected by Kind.
type PricingStructure struct {
	Kind       StructureKind
	PerToken   *PerTokenStructure
	PerRequest *PerRequestStructure
	Tiered     *TieredStructure
}

// Validate enforces the structural invariants from spec §4.1's
// ValidationError cases (negative prices, non-monotone tiers, empty tiers).
func (s PricingStructure) Validate() error {
	switch s.Kind {
	case StructurePerToken:
		if s.PerToken == nil {
			return errs.PricingStructureMismatch("per_token structure missing its payload")
		}
		if money.IsNegative(s.PerToken.InputPricePerMillion) || money.IsNegative(s.PerToken.OutputPricePerMillion) {
			return errs.PricingStructureMismatch("per_token prices must be non-negative")
		}
		if s.PerToken.CachedInputDiscount != nil {
			d := *s.PerToken.CachedInputDiscount
			if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
				return errs.PricingStructureMismatch("cached_input_discount must be in [0,1]")
			}
		}
	case StructurePerRequest:
		if s.PerRequest == nil {
			return errs.PricingStructureMismatch("per_request structure missing its payload")
		}
		if money.IsNegative(s.PerRequest.PricePerRequest) || money.IsNegative(s.PerRequest.OveragePricePerMillion) {
			return errs.PricingStructureMismatch("per_request prices must be non-negative")
		}
	case StructureTiered:
		if s.Tiered == nil || len(s.Tiered.Tiers) == 0 {
			return errs.PricingStructureMismatch("tiered structure must have at least one tier")
		}
		prev := int64(-1)
		for i, tier := range s.Tiered.Tiers {
			if i == 0 && tier.ThresholdTokens != 0 {
				return errs.PricingStructureMismatch("first tier must start at threshold 0")
			}
			if int64(tier.ThresholdTokens) <= prev {
				return errs.PricingStructureMismatch("tier thresholds must be strictly increasing")
			}
			prev = int64(tier.ThresholdTokens)
			if money.IsNegative(tier.InputPricePerMillion) || money.IsNegative(tier.OutputPricePerMillion) {
				return errs.PricingStructureMismatch("tier prices must be non-negative")
			}
		}
	default:
		return errs.PricingStructureMismatch("unknown pricing structure kind")
	}
	return nil
}

// PricingTable is a time-bounded pricing row for (provider, model, region)
// (spec §3). EndDate nil means the interval is open (+∞).
type PricingTable struct {
	ID            ids.ID
	Provider      Provider
	ModelName     string
	EffectiveDate time.Time
	EndDate       *time.Time
	Structure     PricingStructure
	Currency      string
	Region        *string
}

// Covers reports whether t falls within [EffectiveDate, EndDate).
func (p PricingTable) Covers(t time.Time) bool {
	if t.Before(p.EffectiveDate) {
		return false
	}
	if p.EndDate != nil && !t.Before(*p.EndDate) {
		return false
	}
	return true
}

// Overlaps reports whether p's interval intersects o's interval.
func (p PricingTable) Overlaps(o PricingTable) bool {
	pEnd := farFuture
	if p.EndDate != nil {
		pEnd = *p.EndDate
	}
	oEnd := farFuture
	if o.EndDate != nil {
		oEnd = *o.EndDate
	}
	return p.EffectiveDate.Before(oEnd) && o.EffectiveDate.Before(pEnd)
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Validate checks the table's own fields (currency presence, structure
// validity, and end_date > effective_date when present).
func (p PricingTable) Validate() error {
	if p.ModelName == "" {
		return errs.Validation("model_name", "required")
	}
	if p.Currency == "" {
		return errs.Validation("currency", "required")
	}
	if p.EndDate != nil && !p.EndDate.After(p.EffectiveDate) {
		return errs.Validation("end_date", "must be after effective_date")
	}
	return p.Structure.Validate()
}
