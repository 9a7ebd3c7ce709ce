package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func installManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value
		}
	}
	return 0
}

func TestGraphQLMetrics_Records(t *testing.T) {
	reader := installManualReader(t)
	metrics, err := InitGraphQLMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRequest(ctx, 12*time.Millisecond, true, "query")
	metrics.RecordPlan(ctx, "Task", 2, 300, 3)
	metrics.RecordResultsCount(ctx, "Task", 6)
	metrics.RecordAggregateSlot(ctx, "count", "success")
	metrics.RecordAggregateSlot(ctx, "group", "rejected")
	metrics.RecordBatchQueriesSaved(ctx, 0, "to_many")
	metrics.RecordBatchQueriesSaved(ctx, 4, "to_many")
	metrics.RecordBatchSkipped(ctx, "many_to_many", "no_parents")

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, data["graphql.errors.total"], attribute.String("operation_type", "query")))
	assert.Equal(t, int64(1), sumFor(t, data["graphql.aggregate.slots"], attribute.String("kind", "group")))
	assert.Equal(t, int64(4), sumFor(t, data["graphql.batch.queries_saved"], attribute.String("relation_type", "to_many")))
	assert.Equal(t, int64(1), sumFor(t, data["graphql.batch.skipped"], attribute.String("reason", "no_parents")))

	depth, ok := data["graphql.plan.depth"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, depth.DataPoints, 1)
	assert.Equal(t, int64(2), depth.DataPoints[0].Sum)
}

type fakePlanCache struct {
	hits, misses uint64
	size         int
}

func (c *fakePlanCache) Stats() (uint64, uint64) { return c.hits, c.misses }
func (c *fakePlanCache) Len() int                { return c.size }

func TestRegisterPlanCacheMetrics(t *testing.T) {
	reader := installManualReader(t)
	cache := &fakePlanCache{hits: 7, misses: 2, size: 2}

	reg, err := RegisterPlanCacheMetrics(cache)
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	data := collect(t, reader)
	assert.Equal(t, int64(7), sumFor(t, data["graphql.plan_cache.lookups"], attribute.String("result", "hit")))
	assert.Equal(t, int64(2), sumFor(t, data["graphql.plan_cache.lookups"], attribute.String("result", "miss")))

	gauge, ok := data["graphql.plan_cache.entries"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
}

func TestGraphQLMetricsContext(t *testing.T) {
	assert.Nil(t, GraphQLMetricsFromContext(context.Background()))

	metrics := &GraphQLMetrics{}
	ctx := ContextWithGraphQLMetrics(context.Background(), metrics)
	assert.Same(t, metrics, GraphQLMetricsFromContext(ctx))
}
