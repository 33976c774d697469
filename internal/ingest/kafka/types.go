// Package kafka is an optional high-throughput ingestion source (spec
// §12 feature enrichment): usage records published to a topic as JSON are
// decoded and handed to an ingest.Pipeline the same way an HTTP/CLI caller
// would submit them.
package kafka

import (
	"encoding/json"
	"time"
)

// UsageMessage is the wire shape a producer publishes to the usage topic.
// It mirrors domain.UsageIngestInput's JSON-friendly fields rather than
// importing domain directly, so a schema drift in the wire format fails at
// decode time with a clear error instead of silently binding to the wrong
// struct field.
type UsageMessage struct {
	ID               string          `json:"id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Provider         string          `json:"provider"`
	ModelName        string          `json:"model_name"`
	ModelVersion     string          `json:"model_version,omitempty"`
	ContextWindow    int             `json:"context_window"`
	OrganizationID   string          `json:"organization_id"`
	ProjectID        *string         `json:"project_id,omitempty"`
	UserID           *string         `json:"user_id,omitempty"`
	PromptTokens     uint64          `json:"prompt_tokens"`
	CompletionTokens uint64          `json:"completion_tokens"`
	TotalTokens      *uint64         `json:"total_tokens,omitempty"`
	CachedTokens     *uint64         `json:"cached_tokens,omitempty"`
	ReasoningTokens  *uint64         `json:"reasoning_tokens,omitempty"`
	LatencyMs        *uint64         `json:"latency_ms,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}
