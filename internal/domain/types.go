// Package domain holds the core cost engine's data model: providers, model
// descriptors, usage records, cost records, and pricing structures/tables
// (spec §3). Types here carry validation but no persistence or pricing
// logic — those live in normalize, costcalc, pricing, and storage.
package domain

import (
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
)

// Provider is an open-set enumerated tag. Unrecognized values are accepted
// but never match built-in seed pricing.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderAzure     Provider = "azure"
	ProviderAWS       Provider = "aws"
	ProviderCohere    Provider = "cohere"
	ProviderMistral   Provider = "mistral"
)

// ModelDescriptor names the model an LLM call used. Name is the key used
// for pricing lookup; Version is informational only.
type ModelDescriptor struct {
	Name          string
	Version       string
	ContextWindow int
}

// Validate checks the descriptor's invariants.
func (m ModelDescriptor) Validate() error {
	if m.Name == "" {
		return errs.Validation("model.name", "must not be empty")
	}
	if m.ContextWindow <= 0 {
		return errs.Validation("model.context_window", "must be a positive integer")
	}
	return nil
}

// Tags is an ordered sequence of free-form labels attached to a usage
// record (e.g. for cost-center tracking).
type Tags []string

// Metadata is a mapping from string keys to JSON-serializable values.
type Metadata map[string]any

// UsageIngestInput is the wire-shaped input to ingestion (spec §6): it
// distinguishes an omitted TotalTokens from an explicit zero, which the
// persisted UsageRecord cannot (it always carries the resolved value).
type UsageIngestInput struct {
	ID                ids.ID
	Timestamp         time.Time
	Provider          Provider
	Model             ModelDescriptor
	OrganizationID    string
	ProjectID         *string
	UserID            *string
	PromptTokens      uint64
	CompletionTokens  uint64
	TotalTokens       *uint64
	CachedTokens      *uint64
	ReasoningTokens   *uint64
	LatencyMs         *uint64
	Tags              Tags
	Metadata          Metadata
}

// UsageRecord is the primary, append-only ingestion object (spec §3).
type UsageRecord struct {
	ID               ids.ID
	Timestamp        time.Time
	Provider         Provider
	Model            ModelDescriptor
	OrganizationID   string
	ProjectID        *string
	UserID           *string
	PromptTokens     uint64
	CompletionTokens uint64
	TotalTokens      uint64
	CachedTokens     *uint64
	ReasoningTokens  *uint64
	LatencyMs        *uint64
	Tags             Tags
	Metadata         Metadata
	IngestedAt       time.Time
}

func u64ptrOr(p *uint64, def uint64) uint64 {
	if p == nil {
		return def
	}
	return *p
}

// NewUsageRecord validates input and computes derived fields, assigning a
// fresh ID when input.ID is nil and stamping IngestedAt from now. It
// performs no persistence and no pricing lookup.
func NewUsageRecord(input UsageIngestInput, now time.Time, clockSkew time.Duration) (*UsageRecord, error) {
	if input.OrganizationID == "" {
		return nil, errs.Validation("organization_id", "required")
	}
	if err := input.Model.Validate(); err != nil {
		return nil, err
	}
	if input.Timestamp.IsZero() {
		return nil, errs.Validation("timestamp", "required")
	}
	if input.Timestamp.After(now.Add(clockSkew)) {
		return nil, errs.Validation("timestamp", "exceeds allowed clock skew relative to ingest time")
	}

	cached := u64ptrOr(input.CachedTokens, 0)
	if input.CachedTokens != nil && cached > input.PromptTokens {
		return nil, errs.Validation("cached_tokens", "must not exceed prompt_tokens")
	}
	reasoning := u64ptrOr(input.ReasoningTokens, 0)

	computedTotal := input.PromptTokens + input.CompletionTokens + reasoning
	var total uint64
	if input.TotalTokens == nil {
		total = computedTotal
	} else {
		total = *input.TotalTokens
		if total != computedTotal {
			return nil, errs.Validation("total_tokens", "must equal prompt_tokens + completion_tokens + reasoning_tokens")
		}
	}

	id := input.ID
	if ids.IsNil(id) {
		id = ids.New()
	}

	return &UsageRecord{
		ID:               id,
		Timestamp:        input.Timestamp.UTC(),
		Provider:         input.Provider,
		Model:            input.Model,
		OrganizationID:   input.OrganizationID,
		ProjectID:        input.ProjectID,
		UserID:           input.UserID,
		PromptTokens:     input.PromptTokens,
		CompletionTokens: input.CompletionTokens,
		TotalTokens:      total,
		CachedTokens:     input.CachedTokens,
		ReasoningTokens:  input.ReasoningTokens,
		LatencyMs:        input.LatencyMs,
		Tags:             input.Tags,
		Metadata:         input.Metadata,
		IngestedAt:       now.UTC(),
	}, nil
}
