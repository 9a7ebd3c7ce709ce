package planner

import (
	"entitygraph/internal/introspection"
	"entitygraph/internal/sqltype"
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Request is the parsed form of one root field. It carries everything the
// compiler needs and nothing from the GraphQL AST.
type Request struct {
	Entity *introspection.EntityDescriptor
	// Single is set for the by-identifier lookup field. The response is the
	// entity object itself rather than the select/total/aggregate wrapper.
	Single bool

	Where    *WhereNode
	Page     *PageSpec
	OrderBy  []OrderSpec
	Distinct *bool

	// Select holds one node per requested select alias. Each node's children
	// are fields of Entity. For Single requests it holds exactly one node
	// with an empty alias.
	Select     []*SelectionNode
	Aggregates []*AggregateSpec
	// Totals and Pages hold the response keys of the total and pages fields.
	Totals []string
	Pages  []string
}

// WantsCount reports whether total or pages were requested.
func (r *Request) WantsCount() bool {
	return len(r.Totals) > 0 || len(r.Pages) > 0
}

// SelectionNode is one requested field of an entity.
type SelectionNode struct {
	Field    string
	Alias    string
	Children []*SelectionNode

	// Scalar fields: field-level ordering.
	Order *Direction

	// Associations.
	Where    *WhereNode
	Optional *bool
	// To-many associations.
	Page    *PageSpec
	OrderBy []OrderSpec
}

// Key returns the response key of the node.
func (n *SelectionNode) Key() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Field
}

// NodeKind tags the variant of a WhereNode.
type NodeKind int

const (
	NodeLeaf NodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
	NodeExists
	NodeNotExists
	// NodeAssociation filters through an association without an explicit
	// EXISTS. To-one associations become joins, to-many become EXISTS.
	NodeAssociation
)

// WhereNode is one node of a parsed where tree.
type WhereNode struct {
	Kind NodeKind
	// Path names the scalar through embedded fields for leaves, and the
	// association for NodeExists, NodeNotExists and NodeAssociation.
	Path     []string
	Op       sqltype.Operator
	Value    any
	Children []*WhereNode
}

// And combines nodes into a conjunction, dropping nils.
func And(nodes ...*WhereNode) *WhereNode {
	var children []*WhereNode
	for _, n := range nodes {
		if n != nil {
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &WhereNode{Kind: NodeAnd, Children: children}
}

// PageSpec selects one page of a list. Start is the 1-based page number.
type PageSpec struct {
	Start   int
	Limit   int
	Limited bool
}

// Offset returns the number of rows skipped before the page.
func (p PageSpec) Offset() int {
	if !p.Limited || p.Start <= 1 {
		return 0
	}
	return (p.Start - 1) * p.Limit
}

// OrderSpec orders by an <Entity>Field value.
type OrderSpec struct {
	Field     string
	Direction Direction
}

// AggregateSpec is one requested aggregate alias.
type AggregateSpec struct {
	Alias  string
	Counts []CountSlot
	Groups []*GroupSlot
}

// CountSlot is a count field. Of names an association of the counted entity.
type CountSlot struct {
	Alias string
	Of    string
}

// GroupSlot is a group field, either directly under aggregate or under
// aggregate.by.<association>.
type GroupSlot struct {
	// Container is the response key of the by field, empty for direct groups.
	Container   string
	Alias       string
	Association string
	By          []GroupBy
	Counts      []CountSlot
}

// GroupBy is one grouping key of a group.
type GroupBy struct {
	Alias string
	Field string
	Order *Direction
}
