package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"entitygraph/internal/logging"
)

const tracerName = "entitygraph/graphql"

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// carrying the analyzed operation. The request logger gains the trace and
// span IDs so log records can be joined with traces.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := OperationFromContext(r.Context())
			if op == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer(tracerName).Start(r.Context(), "graphql.execute",
				trace.WithAttributes(operationAttributes(op)...),
			)
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				logger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, logger)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func operationAttributes(op *Operation) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("graphql.operation.type", op.Type),
		attribute.String("graphql.operation.hash", op.Hash),
		attribute.Int("graphql.document.field_count", op.FieldCount),
		attribute.Int("graphql.document.depth", op.SelectionDepth),
		attribute.Int("graphql.document.variable_count", op.VariableCount),
	}
	if op.Name != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", op.Name))
	}
	return attrs
}
