package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"entitygraph/internal/observability"
	"entitygraph/internal/planner"
	"entitygraph/internal/sqltype"
)

// execute runs every statement of plan and shapes the response. A query
// resolves to a *ResultTree holding the select lists, totals, pages and
// aggregates; a lookup resolves to the first matching row or nil.
func (e *Engine) execute(ctx context.Context, plan *planner.QueryPlan) (any, error) {
	var (
		lists  map[string][]any
		total  int64
		slots  = make([]any, len(plan.Slots))
		loaded = BatchRows{}
	)

	metrics := observability.GraphQLMetricsFromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.queryRows(gctx, plan.Root.Query, len(plan.Root.Columns))
		if err != nil {
			return err
		}
		if metrics != nil && !plan.Root.Query.Empty() {
			metrics.RecordResultsCount(gctx, plan.Entity.Name, int64(len(rows)))
		}
		var mu sync.Mutex
		if err := e.loadBatches(gctx, plan.Root, rows, loaded, &mu); err != nil {
			return err
		}
		shaped, err := NewShaper(e.sc.Registry, loaded).Shape(plan.Root, rows)
		if err != nil {
			return err
		}
		lists = shaped
		return nil
	})
	if plan.Total != nil && !plan.Single {
		g.Go(func() error {
			n, err := e.count(gctx, *plan.Total)
			if err != nil {
				return err
			}
			total = n
			return nil
		})
	}
	for i, slot := range plan.Slots {
		i, slot := i, slot
		if slot.Err != nil {
			if metrics != nil {
				metrics.RecordAggregateSlot(ctx, slotKind(slot), "rejected")
			}
			slots[i] = slot.Err
			continue
		}
		g.Go(func() error {
			value, err := e.runSlot(gctx, slot)
			if metrics != nil {
				outcome := "success"
				if err != nil {
					outcome = "error"
				}
				metrics.RecordAggregateSlot(gctx, slotKind(slot), outcome)
			}
			if err != nil {
				return err
			}
			slots[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if plan.Single {
		list := lists[""]
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}

	tree := NewResultTree()
	for _, root := range plan.Root.Outputs {
		tree.Set(root.Key, lists[root.Key])
	}
	for _, key := range plan.Totals {
		tree.Set(key, total)
	}
	for _, key := range plan.Pages {
		tree.Set(key, plan.PageCount(total))
	}
	for i, slot := range plan.Slots {
		aggregate := tree.child(slot.Aggregate)
		if slot.Container != "" {
			aggregate = aggregate.child(slot.Container)
		}
		aggregate.Set(slot.Alias, slots[i])
	}
	return tree, nil
}

// queryRows runs q and scans width columns per row. An empty query yields
// no rows.
func (e *Engine) queryRows(ctx context.Context, q planner.SQLQuery, width int) ([][]any, error) {
	if q.Empty() {
		return nil, nil
	}
	rows, err := e.executor.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, width)
		dest := make([]any, width)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, normalizeQueryError(err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, normalizeQueryError(err)
	}
	return out, nil
}

func (e *Engine) count(ctx context.Context, q planner.SQLQuery) (int64, error) {
	rows, err := e.queryRows(ctx, q, 1)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return e.long(rows[0][0])
}

func (e *Engine) long(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	serialized, err := e.sc.Registry.Serialize(sqltype.Long, v)
	if err != nil {
		return 0, err
	}
	n, ok := serialized.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count value %T", serialized)
	}
	return n, nil
}

// runSlot resolves one aggregate slot: an int64 for a count, a list of
// group trees for a group.
func (e *Engine) runSlot(ctx context.Context, slot *planner.SlotPlan) (any, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "graphql.aggregate",
		attribute.String("graphql.aggregate.alias", slot.Alias),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if slot.Kind == planner.SlotCount {
		var n int64
		n, err = e.count(ctx, slot.Query)
		return n, err
	}

	var rows [][]any
	rows, err = e.queryRows(ctx, slot.Query, len(slot.Groups)+1)
	if err != nil {
		return nil, err
	}
	groups := make([]any, 0, len(rows))
	for _, row := range rows {
		tree := NewResultTree()
		for i, column := range slot.Groups {
			var value any
			value, err = e.sc.Registry.Serialize(column.Scalar, row[i])
			if err != nil {
				return nil, err
			}
			tree.Set(column.Key, value)
		}
		var n int64
		n, err = e.long(row[len(slot.Groups)])
		if err != nil {
			return nil, err
		}
		tree.Set(slot.CountKey, n)
		groups = append(groups, tree)
	}
	return groups, nil
}

func slotKind(slot *planner.SlotPlan) string {
	if slot.Kind == planner.SlotGroup {
		return "group"
	}
	return "count"
}

type batchTarget struct {
	batch     *planner.BatchPlan
	parentKey []int
}

// collectBatches lists the to-many batches fed by rows of one scope. Embedded
// and to-one selections share the scope's row, so their batches belong here
// too.
func collectBatches(outputs []*planner.OutputNode, seen map[*planner.BatchPlan]bool, out []batchTarget) []batchTarget {
	for _, o := range outputs {
		switch o.Kind {
		case planner.OutputToMany:
			if !seen[o.Batch] {
				seen[o.Batch] = true
				out = append(out, batchTarget{batch: o.Batch, parentKey: o.ParentKey})
			}
		case planner.OutputRoot, planner.OutputEmbedded, planner.OutputToOne:
			out = collectBatches(o.Children, seen, out)
		}
	}
	return out
}

// loadBatches loads the children of rows for every batch of scope, sibling
// batches concurrently, then descends into the loaded children.
func (e *Engine) loadBatches(ctx context.Context, scope *planner.ScopePlan, rows [][]any, loaded BatchRows, mu *sync.Mutex) error {
	targets := collectBatches(scope.Outputs, map[*planner.BatchPlan]bool{}, nil)
	if len(targets) == 0 {
		return nil
	}
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(e.batchConcurrency)
	for _, target := range targets {
		target := target
		p.Go(func(ctx context.Context) error {
			return e.loadBatch(ctx, target, rows, loaded, mu)
		})
	}
	return p.Wait()
}

func (e *Engine) loadBatch(ctx context.Context, target batchTarget, rows [][]any, loaded BatchRows, mu *sync.Mutex) error {
	batch := target.batch
	relation := "to_many"
	if batch.Field != nil && batch.Field.Junction != nil {
		relation = "many_to_many"
	}
	metrics := observability.GraphQLMetricsFromContext(ctx)

	parents := uniqueParents(rows, target.parentKey)
	groups := make(map[string][][]any, len(parents))
	if len(parents) == 0 {
		if metrics != nil {
			metrics.RecordBatchSkipped(ctx, relation, "no_parents")
		}
		mu.Lock()
		loaded[batch] = groups
		mu.Unlock()
		return nil
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "graphql.batch",
		attribute.String("graphql.batch.field", batch.Field.Name),
		attribute.String("graphql.batch.relation", relation),
		attribute.Int("graphql.batch.parent_count", len(parents)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	width := len(batch.Scope.Columns) + batch.ParentWidth()
	var children [][]any
	statements := 0
	for _, chunk := range planner.ChunkParents(parents, e.chunkSize) {
		var q planner.SQLQuery
		q, err = batch.SQL(chunk)
		if err != nil {
			return err
		}
		if q.Empty() {
			continue
		}
		statements++
		var chunkRows [][]any
		chunkRows, err = e.queryRows(ctx, q, width)
		if err != nil {
			return err
		}
		for _, row := range chunkRows {
			key := planner.KeyOf(row[len(batch.Scope.Columns):]...)
			groups[key] = append(groups[key], row)
		}
		children = append(children, chunkRows...)
	}

	if metrics != nil {
		metrics.RecordBatchParentCount(ctx, int64(len(parents)), relation)
		metrics.RecordBatchResultRows(ctx, int64(len(children)), relation)
		metrics.RecordBatchQueriesSaved(ctx, int64(len(parents)-statements), relation)
	}
	e.logger(ctx).Debug("batch loaded",
		"field", batch.Field.Name,
		"relation", relation,
		"parents", len(parents),
		"rows", len(children),
		"statements", statements,
	)

	mu.Lock()
	loaded[batch] = groups
	mu.Unlock()

	err = e.loadBatches(ctx, batch.Scope, children, loaded, mu)
	return err
}

// uniqueParents returns the distinct parent tuples of rows in first-seen
// order. Tuples holding a null cannot match any child and are dropped.
func uniqueParents(rows [][]any, columns []int) []planner.ParentTuple {
	seen := make(map[string]struct{}, len(rows))
	var out []planner.ParentTuple
	for _, row := range rows {
		values := make([]interface{}, len(columns))
		valid := true
		for i, column := range columns {
			if row[column] == nil {
				valid = false
				break
			}
			values[i] = row[column]
		}
		if !valid {
			continue
		}
		key := planner.KeyOf(values...)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, planner.ParentTuple{Values: values})
	}
	return out
}
