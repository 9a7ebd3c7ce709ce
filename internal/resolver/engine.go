// Package resolver executes compiled query plans. The Engine serves the root
// fields of the generated schema: each root field is parsed, compiled and run
// as a fixed set of statements, and the rows are shaped into a result tree
// that nested fields read by response key.
package resolver

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"entitygraph/internal/dbexec"
	"entitygraph/internal/introspection"
	"entitygraph/internal/logging"
	"entitygraph/internal/observability"
	"entitygraph/internal/planner"
	"entitygraph/internal/scalars"
	"entitygraph/internal/schema"
)

// DefaultBatchConcurrency bounds the sibling batches loaded at once.
const DefaultBatchConcurrency = 4

const tracerName = "entitygraph/resolver"

// Engine resolves the root query fields against a database.
type Engine struct {
	sc       *schema.Context
	executor dbexec.QueryExecutor

	cache            *planner.PlanCache
	limits           *planner.PlanLimits
	defaultListLimit int
	batchConcurrency int
	chunkSize        int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPlanCache reuses compiled plans across requests.
func WithPlanCache(cache *planner.PlanCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithPlanLimits rejects plans whose estimated cost exceeds limits.
func WithPlanLimits(limits planner.PlanLimits) Option {
	return func(e *Engine) {
		e.limits = &limits
	}
}

// WithDefaultListLimit sets the row estimate used for unbounded lists.
func WithDefaultListLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.defaultListLimit = limit
		}
	}
}

// WithBatchConcurrency bounds the sibling batches loaded at once.
func WithBatchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchConcurrency = n
		}
	}
}

// WithChunkSize sets the number of parent keys per batch statement.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// NewEngine builds the GraphQL schema for graph with the engine as its root
// resolver.
func NewEngine(graph *introspection.Graph, registry *scalars.Registry, opts schema.Options, executor dbexec.QueryExecutor, options ...Option) (*Engine, error) {
	if executor == nil {
		return nil, fmt.Errorf("engine requires a query executor")
	}
	e := &Engine{
		executor:         executor,
		batchConcurrency: DefaultBatchConcurrency,
		chunkSize:        planner.BatchChunkSize,
	}
	for _, opt := range options {
		opt(e)
	}
	types, err := schema.Build(graph, registry, opts, e)
	if err != nil {
		return nil, err
	}
	e.sc = schema.NewContext(graph, registry, opts, types)
	return e, nil
}

// Schema returns the executable GraphQL schema.
func (e *Engine) Schema() graphql.Schema {
	return e.sc.Types.Schema
}

// Context returns the schema context plans are compiled against.
func (e *Engine) Context() *schema.Context {
	return e.sc
}

// ResolveQuery serves the plural query field of entity.
func (e *Engine) ResolveQuery(entity *introspection.EntityDescriptor) graphql.FieldResolveFn {
	return e.resolve(entity, false)
}

// ResolveLookup serves the lookup-by-identifier field of entity.
func (e *Engine) ResolveLookup(entity *introspection.EntityDescriptor) graphql.FieldResolveFn {
	return e.resolve(entity, true)
}

func (e *Engine) resolve(entity *introspection.EntityDescriptor, single bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := observability.StartSpan(ctx, tracerName, "graphql.resolve",
			attribute.String("graphql.entity", entity.Name),
			attribute.Bool("graphql.lookup", single),
		)
		var err error
		defer func() { observability.EndSpan(span, err) }()

		if len(p.Info.FieldASTs) == 0 {
			err = fmt.Errorf("missing field selection for %s", entity.Name)
			return nil, err
		}

		var req *planner.Request
		req, err = planner.ParseRequest(entity, single, planner.ParseInput{
			Field:     p.Info.FieldASTs[0],
			Fragments: p.Info.Fragments,
			Variables: p.Info.VariableValues,
		})
		if err != nil {
			return nil, err
		}

		var plan *planner.QueryPlan
		plan, err = planner.Compile(ctx, e.sc, req, e.compileOptions()...)
		if err != nil {
			e.logger(ctx).Debug("query rejected", "entity", entity.Name, "error", err)
			return nil, err
		}
		if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
			metrics.RecordPlan(ctx, entity.Name, plan.Cost.Depth, plan.Cost.Rows, plan.Cost.Statements)
		}

		var result any
		result, err = e.execute(ctx, plan)
		if err != nil {
			e.logger(ctx).Warn("query failed", "entity", entity.Name, "error", err)
			return nil, err
		}
		return result, nil
	}
}

func (e *Engine) compileOptions() []planner.Option {
	var opts []planner.Option
	if e.cache != nil {
		opts = append(opts, planner.WithCache(e.cache))
	}
	if e.limits != nil {
		opts = append(opts, planner.WithLimits(*e.limits))
	}
	if e.defaultListLimit > 0 {
		opts = append(opts, planner.WithDefaultListLimit(e.defaultListLimit))
	}
	return opts
}

func (e *Engine) logger(ctx context.Context) *logging.Logger {
	return logging.FromContext(ctx)
}
