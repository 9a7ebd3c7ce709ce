package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName scopes every instrument the service creates.
const meterName = "entitygraph"

// GraphQLMetrics holds the request, planning and execution instruments.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter

	planDepth      metric.Int64Histogram
	planRows       metric.Int64Histogram
	planStatements metric.Int64Histogram
	resultsCount   metric.Int64Histogram
	aggregateSlots metric.Int64Counter

	batchParentCount  metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchQueriesSaved metric.Int64Counter
	batchSkipped      metric.Int64Counter
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) histogram(name, description, unit string) metric.Int64Histogram {
	if b.err != nil {
		return nil
	}
	opts := []metric.Int64HistogramOption{metric.WithDescription(description)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	h, err := b.meter.Int64Histogram(name, opts...)
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) counter(name, description string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

// InitGraphQLMetrics creates the instruments on the global meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(meterName)
	b := &instrumentBuilder{meter: meter}

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	m := &GraphQLMetrics{
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
		requestCounter:  b.counter("graphql.requests.total", "Total number of GraphQL requests"),
		errorCounter:    b.counter("graphql.errors.total", "Total number of GraphQL requests with errors"),

		planDepth:      b.histogram("graphql.plan.depth", "Association depth of compiled plans", ""),
		planRows:       b.histogram("graphql.plan.estimated_rows", "Estimated rows of compiled plans", ""),
		planStatements: b.histogram("graphql.plan.statements", "Statements issued by compiled plans", ""),
		resultsCount:   b.histogram("graphql.results.count", "Root rows returned by a query field", ""),
		aggregateSlots: b.counter("graphql.aggregate.slots", "Aggregate slots executed"),

		batchParentCount:  b.histogram("graphql.batch.parent_count", "Number of parent keys included in a batch", ""),
		batchResultRows:   b.histogram("graphql.batch.result_rows", "Number of rows returned by a batch", ""),
		batchQueriesSaved: b.counter("graphql.batch.queries_saved", "Number of per-parent queries saved by batching"),
		batchSkipped:      b.counter("graphql.batch.skipped", "Number of batches skipped"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// InitMetrics initializes the GraphQL metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("custom GraphQL metrics initialized")
	return metrics, nil
}

// RecordRequest records a GraphQL request with its duration and outcome.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
}

// RecordPlan records the estimated cost of a compiled plan.
func (m *GraphQLMetrics) RecordPlan(ctx context.Context, entity string, depth, rows, statements int) {
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	m.planDepth.Record(ctx, int64(depth), attrs)
	m.planRows.Record(ctx, int64(rows), attrs)
	m.planStatements.Record(ctx, int64(statements), attrs)
}

// RecordResultsCount records the root rows returned for entity.
func (m *GraphQLMetrics) RecordResultsCount(ctx context.Context, entity string, count int64) {
	m.resultsCount.Record(ctx, count, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordAggregateSlot counts one executed aggregate slot. kind is count or
// group; outcome is success, error or rejected.
func (m *GraphQLMetrics) RecordAggregateSlot(ctx context.Context, kind, outcome string) {
	m.aggregateSlots.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, relationType string) {
	m.batchParentCount.Record(ctx, count, metric.WithAttributes(attribute.String("relation_type", relationType)))
}

func (m *GraphQLMetrics) RecordBatchResultRows(ctx context.Context, count int64, relationType string) {
	m.batchResultRows.Record(ctx, count, metric.WithAttributes(attribute.String("relation_type", relationType)))
}

func (m *GraphQLMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, relationType string) {
	if count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, metric.WithAttributes(attribute.String("relation_type", relationType)))
}

func (m *GraphQLMetrics) RecordBatchSkipped(ctx context.Context, relationType, reason string) {
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
		attribute.String("reason", reason),
	))
}

// IncrementActiveRequests increments the active requests counter.
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter.
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
