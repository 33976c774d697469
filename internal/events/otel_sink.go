package events

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
)

// OtelSink emits every event as a zero-duration span carrying the
// event's fields as attributes, grounded on the ecosystem's tracer-
// initialization idiom (resource, TracerProvider, batched exporter)
// scoped here to a stdout exporter so the engine's core stays runnable
// without an external collector; a production deployment swaps in an
// OTLP exporter at the TracerProvider construction site.
type OtelSink struct {
	tracer trace.Tracer
}

// NewOtelSink builds an OtelSink reporting spans as serviceName,
// returning a shutdown func the caller must invoke (typically via
// defer) to flush the exporter.
func NewOtelSink(ctx context.Context, serviceName string) (*OtelSink, func(context.Context) error, error) {
	log := logx.WithComponent("events.otel")

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(stdoutWriter{log: log}))
	if err != nil {
		return nil, nil, fmt.Errorf("events: creating stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("events: building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &OtelSink{tracer: provider.Tracer("llm-cost-ops/events")}, provider.Shutdown, nil
}

// Emit starts and immediately ends a span named after the event type,
// carrying Fields as span attributes — the engine's events are instants,
// not durations, so a zero-width span is the natural OTel shape for them.
func (o *OtelSink) Emit(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, string(event.Type))
	defer span.End()

	span.SetAttributes(attribute.String("organization_id", event.OrganizationID))
	for k, v := range event.Fields {
		span.SetAttributes(attributeFor(k, v))
	}
}

func attributeFor(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// stdoutWriter adapts the engine's structured logger to stdouttrace's
// io.Writer exporter sink, so span export goes through the same logging
// pipeline as everything else instead of writing raw JSON to stdout.
type stdoutWriter struct {
	log interface {
		Debug(msg string, args ...any)
	}
}

func (w stdoutWriter) Write(p []byte) (int, error) {
	w.log.Debug("span exported", "payload", string(p))
	return len(p), nil
}
