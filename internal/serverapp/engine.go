package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"entitygraph/internal/config"
	"entitygraph/internal/dbexec"
	"entitygraph/internal/introspection"
	"entitygraph/internal/logging"
	"entitygraph/internal/naming"
	"entitygraph/internal/observability"
	"entitygraph/internal/planner"
	"entitygraph/internal/resolver"
	"entitygraph/internal/scalars"
	"entitygraph/internal/schemafilter"
)

// metadataProvider selects where entity metadata is read from and applies
// the configured table and column filters.
func metadataProvider(cfg *config.Config, db *sql.DB, databaseName string, logger *logging.Logger) (introspection.MetadataProvider, error) {
	var provider introspection.MetadataProvider
	switch cfg.Metadata.Source {
	case config.MetadataModelFile:
		p, err := introspection.LoadModelFile(cfg.Metadata.ModelFile)
		if err != nil {
			return nil, err
		}
		provider = p
	case config.MetadataInformationSchema, "":
		provider = introspection.NewInfoSchemaProvider(db, databaseName, logger.Logger)
	default:
		return nil, fmt.Errorf("unsupported metadata source %q", cfg.Metadata.Source)
	}
	if cfg.Metadata.Filters.Empty() {
		return provider, nil
	}
	return schemafilter.Wrap(provider, cfg.Metadata.Filters), nil
}

// engineResources are the startup products owned by the App.
type engineResources struct {
	engine       *resolver.Engine
	cache        *planner.PlanCache
	registration metric.Registration
}

func (r *engineResources) close() error {
	var err error
	if r.registration != nil {
		err = r.registration.Unregister()
	}
	if r.cache != nil {
		r.cache.Close()
	}
	return err
}

// buildEngine introspects the entity model once and builds the query engine
// over it. Statements run through a ScopedExecutor so each request uses the
// connections of its dbexec.RequestScope.
func buildEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, databaseName string, metricsEnabled bool) (*engineResources, error) {
	provider, err := metadataProvider(cfg, db, databaseName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata source: %w", err)
	}
	graph, err := introspection.Build(ctx, provider,
		introspection.WithNamer(naming.New(cfg.Naming, logger.Logger)),
		introspection.WithLogger(logger.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect entity model: %w", err)
	}
	logger.Info("entity model loaded",
		slog.String("source", cfg.Metadata.Source),
		slog.Int("entities", len(graph.DescribeAll())),
	)

	res := &engineResources{}
	options := []resolver.Option{
		resolver.WithBatchConcurrency(cfg.Planner.BatchConcurrency),
		resolver.WithChunkSize(cfg.Planner.BatchChunkSize),
	}
	if limits := cfg.Planner.Limits(); limits != nil {
		options = append(options, resolver.WithPlanLimits(*limits))
	}
	if size := cfg.Planner.PlanCacheSize; size > 0 {
		res.cache, err = planner.NewPlanCache(int64(size))
		if err != nil {
			return nil, fmt.Errorf("failed to create plan cache: %w", err)
		}
		options = append(options, resolver.WithPlanCache(res.cache))
		if metricsEnabled {
			res.registration, err = observability.RegisterPlanCacheMetrics(res.cache)
			if err != nil {
				logger.Warn("failed to register plan cache metrics", slog.String("error", err.Error()))
			}
		}
	}

	res.engine, err = resolver.NewEngine(graph, scalars.NewRegistry(), cfg.Schema, dbexec.NewScopedExecutor(db), options...)
	if err != nil {
		_ = res.close()
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	return res, nil
}
