// Package events implements the engine's observability contract (spec
// §6): structured events emitted at well-defined points in the
// ingestion/pricing/forecast lifecycle. The sink is external per spec
// §1's Non-goals — this package only defines the emission contract and
// ships slog-backed and OpenTelemetry-backed implementations so the core
// is testable without a real collector.
package events

import (
	"context"
	"time"
)

// Type identifies one of the engine's well-defined event points.
type Type string

const (
	TypeUsageIngested    Type = "usage.ingested"
	TypeCostCalculated   Type = "cost.calculated"
	TypePricingResolved  Type = "pricing.resolved"
	TypePricingInserted  Type = "pricing.inserted"
	TypeForecastGenerated Type = "forecast.generated"
	TypeAnomalyDetected  Type = "anomaly.detected"
)

// Event is one structured observability event. Fields is event-specific;
// see the New* constructors for each event type's payload shape.
type Event struct {
	Type           Type
	At             time.Time
	OrganizationID string
	Fields         map[string]any
}

// Sink receives events emitted by the engine. Implementations must not
// block the caller for long — Emit runs inline on the hot path of
// ingestion, pricing, and forecasting.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NewUsageIngested builds the usage.ingested event (spec §6), emitted
// once per usage record that is newly inserted (not a duplicate).
func NewUsageIngested(organizationID, usageID, provider, model string, totalTokens uint64, at time.Time) Event {
	return Event{
		Type:           TypeUsageIngested,
		At:             at,
		OrganizationID: organizationID,
		Fields: map[string]any{
			"usage_id":     usageID,
			"provider":     provider,
			"model":        model,
			"total_tokens": totalTokens,
		},
	}
}

// NewCostCalculated builds the cost.calculated event (spec §6), emitted
// once per cost record written (initial pricing or re-pricing).
func NewCostCalculated(organizationID, usageID, costID string, totalCost, currency string, pending bool, at time.Time) Event {
	return Event{
		Type:           TypeCostCalculated,
		At:             at,
		OrganizationID: organizationID,
		Fields: map[string]any{
			"usage_id":   usageID,
			"cost_id":    costID,
			"total_cost": totalCost,
			"currency":   currency,
			"pending":    pending,
		},
	}
}

// NewPricingResolved builds the pricing.resolved event (spec §6), emitted
// each time the pricing store successfully resolves a table for a
// (provider, model, timestamp).
func NewPricingResolved(organizationID, provider, model, pricingTableID string, at time.Time) Event {
	return Event{
		Type:           TypePricingResolved,
		At:             at,
		OrganizationID: organizationID,
		Fields: map[string]any{
			"provider":         provider,
			"model":            model,
			"pricing_table_id": pricingTableID,
		},
	}
}

// NewPricingInserted builds the pricing.inserted event (spec §6),
// emitted when a new pricing table is accepted, including whether it
// invalidates already-calculated cost records (spec §4.7).
func NewPricingInserted(provider, model, pricingTableID string, invalidatesExisting bool, at time.Time) Event {
	return Event{
		Type: TypePricingInserted,
		At:   at,
		Fields: map[string]any{
			"provider":             provider,
			"model":                model,
			"pricing_table_id":     pricingTableID,
			"invalidates_existing": invalidatesExisting,
		},
	}
}

// NewForecastGenerated builds the forecast.generated event (spec §6).
func NewForecastGenerated(organizationID, model string, horizon int, trend string, at time.Time) Event {
	return Event{
		Type:           TypeForecastGenerated,
		At:             at,
		OrganizationID: organizationID,
		Fields: map[string]any{
			"model":   model,
			"horizon": horizon,
			"trend":   trend,
		},
	}
}

// NewAnomalyDetected builds the anomaly.detected event (spec §6), one per
// flagged bucket.
func NewAnomalyDetected(organizationID, method string, bucket time.Time, value, score float64, at time.Time) Event {
	return Event{
		Type:           TypeAnomalyDetected,
		At:             at,
		OrganizationID: organizationID,
		Fields: map[string]any{
			"method": method,
			"bucket": bucket.Format(time.RFC3339),
			"value":  value,
			"score":  score,
		},
	}
}
