package resolver

import (
	"fmt"

	"entitygraph/internal/planner"
	"entitygraph/internal/scalars"
)

// BatchRows holds the loaded rows of each to-many batch, grouped by the
// parent key they belong to (see planner.KeyOf). Rows keep statement order.
type BatchRows map[*planner.BatchPlan]map[string][][]any

// Shaper converts the rows of compiled statements into result trees.
type Shaper struct {
	registry *scalars.Registry
	batches  BatchRows
}

// NewShaper returns a shaper serializing through registry and attaching
// to-many children from batches.
func NewShaper(registry *scalars.Registry, batches BatchRows) *Shaper {
	if batches == nil {
		batches = BatchRows{}
	}
	return &Shaper{registry: registry, batches: batches}
}

// Shape builds one list per select alias of the root statement. Rows with
// equal identifiers describe one entity: join fan-out collapses onto the
// first such row.
func (s *Shaper) Shape(plan *planner.ScopePlan, rows [][]any) (map[string][]any, error) {
	distinct := uniqueRows(plan.Key, rows)
	out := make(map[string][]any, len(plan.Outputs))
	for _, root := range plan.Outputs {
		list, err := s.list(root.Children, distinct)
		if err != nil {
			return nil, err
		}
		out[root.Key] = list
	}
	return out, nil
}

func (s *Shaper) list(outputs []*planner.OutputNode, rows [][]any) ([]any, error) {
	list := make([]any, 0, len(rows))
	for _, row := range rows {
		tree, err := s.tree(outputs, row)
		if err != nil {
			return nil, err
		}
		list = append(list, tree)
	}
	return list, nil
}

func (s *Shaper) tree(outputs []*planner.OutputNode, row []any) (*ResultTree, error) {
	tree := NewResultTree()
	for _, out := range outputs {
		value, err := s.value(out, row)
		if err != nil {
			return nil, err
		}
		tree.Set(out.Key, value)
	}
	return tree, nil
}

func (s *Shaper) value(out *planner.OutputNode, row []any) (any, error) {
	switch out.Kind {
	case planner.OutputScalar:
		v, err := s.registry.Serialize(out.Scalar, row[out.Column])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", out.Key, err)
		}
		return v, nil

	case planner.OutputEmbedded:
		if columns := scalarColumns(out.Children); len(columns) > 0 && allNull(row, columns) {
			return nil, nil
		}
		return s.tree(out.Children, row)

	case planner.OutputToOne:
		if allNull(row, out.Presence) {
			return nil, nil
		}
		return s.tree(out.Children, row)

	case planner.OutputToMany:
		parent := make([]any, len(out.ParentKey))
		for i, column := range out.ParentKey {
			parent[i] = row[column]
		}
		children := s.batches[out.Batch][planner.KeyOf(parent...)]
		return s.list(out.Batch.Scope.Outputs, uniqueRows(out.Batch.Scope.Key, children))
	}
	return nil, fmt.Errorf("unsupported output kind %d for %s", out.Kind, out.Key)
}

// uniqueRows keeps the first row of each key in order.
func uniqueRows(key []int, rows [][]any) [][]any {
	if len(key) == 0 {
		return rows
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	values := make([]any, len(key))
	for _, row := range rows {
		for i, column := range key {
			values[i] = row[column]
		}
		k := planner.KeyOf(values...)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// scalarColumns lists the scalar columns under an embedded selection.
func scalarColumns(outputs []*planner.OutputNode) []int {
	var out []int
	for _, o := range outputs {
		switch o.Kind {
		case planner.OutputScalar:
			out = append(out, o.Column)
		case planner.OutputEmbedded:
			out = append(out, scalarColumns(o.Children)...)
		}
	}
	return out
}

func allNull(row []any, columns []int) bool {
	for _, column := range columns {
		if row[column] != nil {
			return false
		}
	}
	return true
}
