package planner

import (
	"fmt"

	"entitygraph/internal/introspection"
)

// DefaultListLimit is the row estimate for a list requested without a limit.
const DefaultListLimit = 100

// PlanLimits defines cost limits applied during planning. Zero disables a limit.
type PlanLimits struct {
	MaxDepth      int `mapstructure:"max_depth"`
	MaxComplexity int `mapstructure:"max_complexity"`
	MaxRows       int `mapstructure:"max_rows"`
	MaxStatements int `mapstructure:"max_statements"`
}

// PlanCost captures estimated cost for a query.
type PlanCost struct {
	Depth      int
	Complexity int
	Rows       int
	Statements int
}

// EstimateCost estimates cost from the request. Depth counts association
// levels below the root. Rows multiply along to-many paths, taking
// fallbackLimit for levels without a limit.
func EstimateCost(req *Request, defaultLimit, fallbackLimit int) PlanCost {
	if req == nil {
		return PlanCost{}
	}
	rootLimit := 1
	if !req.Single {
		rootLimit = listLimit(req.Page, defaultLimit, fallbackLimit)
	}

	cost := PlanCost{Depth: 1, Complexity: 1, Rows: rootLimit}
	if len(req.Select) > 0 {
		cost.Statements++
	}
	if req.WantsCount() {
		cost.Statements++
	}
	for _, agg := range req.Aggregates {
		cost.Statements += len(agg.Counts) + len(agg.Groups)
	}
	for _, sel := range req.Select {
		depth, rows, complexity, statements := estimateNodes(req.Entity.Visible, sel.Children, rootLimit, fallbackLimit)
		if depth+1 > cost.Depth {
			cost.Depth = depth + 1
		}
		cost.Rows += rows
		cost.Complexity += complexity
		cost.Statements += statements
	}
	cost.Complexity *= rootLimit
	return cost
}

// estimateNodes returns the extra depth, rows, complexity and statements of
// the nodes under parents rows.
func estimateNodes(lookup fieldLookup, nodes []*SelectionNode, parents, fallbackLimit int) (depth, rows, complexity, statements int) {
	for _, node := range nodes {
		f, ok := lookup(node.Field)
		if !ok {
			continue
		}
		switch f.Kind {
		case introspection.KindScalar:
			complexity++
		case introspection.KindEmbedded:
			_, _, c, _ := estimateNodes(f.Embedded.Field, node.Children, parents, fallbackLimit)
			complexity += c
		case introspection.KindToOne, introspection.KindToMany:
			limit, childStatements := 1, 0
			if f.Kind == introspection.KindToMany {
				limit = listLimit(node.Page, 0, fallbackLimit)
				childStatements = 1
			}
			d, r, c, s := estimateNodes(f.Target.Visible, node.Children, parents*limit, fallbackLimit)
			if d+1 > depth {
				depth = d + 1
			}
			if f.Kind == introspection.KindToMany {
				rows += parents * limit
			}
			rows += r
			complexity += 1 + limit*c
			statements += childStatements + s
		}
	}
	return depth, rows, complexity, statements
}

func listLimit(page *PageSpec, defaultLimit, fallbackLimit int) int {
	switch {
	case page != nil && page.Limited:
		return page.Limit
	case defaultLimit > 0:
		return defaultLimit
	case fallbackLimit > 0:
		return fallbackLimit
	}
	return DefaultListLimit
}

func validateLimits(cost PlanCost, limits PlanLimits) error {
	if limits.MaxDepth > 0 && cost.Depth > limits.MaxDepth {
		return &ValidationError{Message: fmt.Sprintf("query exceeds maximum depth of %d (depth: %d)", limits.MaxDepth, cost.Depth)}
	}
	if limits.MaxComplexity > 0 && cost.Complexity > limits.MaxComplexity {
		return &ValidationError{Message: fmt.Sprintf("query exceeds maximum complexity of %d (complexity: %d)", limits.MaxComplexity, cost.Complexity)}
	}
	if limits.MaxRows > 0 && cost.Rows > limits.MaxRows {
		return &ValidationError{Message: fmt.Sprintf("query exceeds maximum rows of %d (estimated: %d)", limits.MaxRows, cost.Rows)}
	}
	if limits.MaxStatements > 0 && cost.Statements > limits.MaxStatements {
		return &ValidationError{Message: fmt.Sprintf("query exceeds maximum statement count of %d (estimated: %d)", limits.MaxStatements, cost.Statements)}
	}
	return nil
}
