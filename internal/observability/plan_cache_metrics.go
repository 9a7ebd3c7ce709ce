package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PlanCacheStats is the read side of a compiled plan cache.
type PlanCacheStats interface {
	Stats() (hits, misses uint64)
	Len() int
}

// RegisterPlanCacheMetrics exports cache lookups and size as observable
// instruments read at collection time. The returned registration must be
// unregistered before the cache is closed.
func RegisterPlanCacheMetrics(cache PlanCacheStats) (metric.Registration, error) {
	meter := otel.Meter(meterName)

	lookups, err := meter.Int64ObservableCounter(
		"graphql.plan_cache.lookups",
		metric.WithDescription("Plan cache lookups by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache lookups counter: %w", err)
	}
	entries, err := meter.Int64ObservableGauge(
		"graphql.plan_cache.entries",
		metric.WithDescription("Compiled plans currently cached"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache entries gauge: %w", err)
	}

	hit := metric.WithAttributes(attribute.String("result", "hit"))
	miss := metric.WithAttributes(attribute.String("result", "miss"))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		hits, misses := cache.Stats()
		o.ObserveInt64(lookups, int64(hits), hit)
		o.ObserveInt64(lookups, int64(misses), miss)
		o.ObserveInt64(entries, int64(cache.Len()))
		return nil
	}, lookups, entries)
}
