// Package schema derives the GraphQL type surface from the entity descriptor
// graph: result types, where inputs, order and page inputs, aggregate types
// and the root query fields.
package schema

import (
	"strings"

	"entitygraph/internal/introspection"
	"entitygraph/internal/scalars"
)

// Argument, field and input names shared by the builder and the request parser.
const (
	ArgWhere    = "where"
	ArgPage     = "page"
	ArgOrderBy  = "orderBy"
	ArgDistinct = "distinct"
	ArgOptional = "optional"
	ArgField    = "field"
	ArgOf       = "of"

	FieldSelect    = "select"
	FieldAggregate = "aggregate"
	FieldTotal     = "total"
	FieldPages     = "pages"
	FieldCount     = "count"
	FieldGroup     = "group"
	FieldBy        = "by"

	PageStart = "start"
	PageLimit = "limit"

	OrderField     = "field"
	OrderDirection = "direction"

	WhereAnd       = "AND"
	WhereOr        = "OR"
	WhereNot       = "NOT"
	WhereExists    = "EXISTS"
	WhereNotExists = "NOT_EXISTS"

	DirectionAsc  = "ASC"
	DirectionDesc = "DESC"
)

// Context is the read-only state shared by the compiler and the shaper. It is
// built once at startup.
type Context struct {
	Graph    *introspection.Graph
	Registry *scalars.Registry
	Options  Options
	Types    *Types
}

// NewContext bundles the startup products.
func NewContext(graph *introspection.Graph, registry *scalars.Registry, opts Options, types *Types) *Context {
	return &Context{Graph: graph, Registry: registry, Options: opts, Types: types}
}

// FieldRef names a scalar leaf of an entity in the <Entity>Field enum.
type FieldRef struct {
	// Name is the path joined with underscores, e.g. address_city.
	Name  string
	Path  []string
	Field *introspection.FieldDescriptor
}

// FieldRefs returns the groupable and orderable scalar leaves of an entity.
// Object-kind leaves have no ordering and are left out.
func FieldRefs(entity *introspection.EntityDescriptor) []FieldRef {
	var out []FieldRef
	for _, sp := range entity.ScalarColumns() {
		if !sp.Field.Scalar.Filterable() {
			continue
		}
		out = append(out, FieldRef{Name: strings.Join(sp.Path, "_"), Path: sp.Path, Field: sp.Field})
	}
	return out
}

// LookupFieldRef resolves an <Entity>Field enum value.
func LookupFieldRef(entity *introspection.EntityDescriptor, name string) (FieldRef, bool) {
	for _, ref := range FieldRefs(entity) {
		if ref.Name == name {
			return ref, true
		}
	}
	return FieldRef{}, false
}
