package events

import (
	"context"
	"log/slog"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
)

// SlogSink emits every event as a structured log line through the
// engine's shared logger. It is the default Sink — always available,
// requiring no external collector — mirroring the teacher's
// Collector.PrometheusFormat() in spirit (always-on, in-process) while
// carrying the engine's own event shape instead of HTTP/DB/provider
// counters.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink builds a SlogSink scoped under the "events" component.
func NewSlogSink() *SlogSink {
	return &SlogSink{log: logx.WithComponent("events")}
}

// Emit logs event at info level, flattening Fields into log attributes.
func (s *SlogSink) Emit(ctx context.Context, event Event) {
	args := make([]any, 0, 4+2*len(event.Fields))
	args = append(args, "event", string(event.Type), "organization_id", event.OrganizationID, "at", event.At)
	for k, v := range event.Fields {
		args = append(args, k, v)
	}
	s.log.Info("engine event", args...)
}

// NoopSink discards every event; useful for benchmarks and for callers
// that have not wired a real sink yet.
type NoopSink struct{}

// Emit does nothing.
func (NoopSink) Emit(context.Context, Event) {}

// MultiSink fans a single event out to every sink it wraps, in order,
// letting a caller attach (for example) both a SlogSink and an OtelSink.
type MultiSink struct {
	Sinks []Sink
}

// Emit calls Emit on every wrapped sink.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m.Sinks {
		s.Emit(ctx, event)
	}
}
