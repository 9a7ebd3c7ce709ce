package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OutcomeKey is set on spans finished with EndSpan.
const OutcomeKey = attribute.Key("entitygraph.outcome")

// StartSpan starts a span on the tracer for scope. The tracer is looked up
// from the global provider on every call so provider swaps take effect.
func StartSpan(ctx context.Context, scope, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordSpanError marks span as failed with err. A nil err is ignored.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan records the outcome of the traced operation and ends span.
func EndSpan(span trace.Span, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		RecordSpanError(span, err)
	}
	span.SetAttributes(OutcomeKey.String(outcome))
	span.End()
}
