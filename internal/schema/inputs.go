package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"entitygraph/internal/introspection"
	"entitygraph/internal/sqltype"
)

func (b *builder) whereFields(e *introspection.EntityDescriptor, et *EntityTypes) graphql.InputObjectConfigFieldMap {
	fields := b.filterFields(e.VisibleFields())
	for _, f := range e.Associations() {
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type:        b.entities[f.Target.Name].Where,
			Description: f.Description,
		}
	}
	fields[WhereAnd] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(et.Where))}
	fields[WhereOr] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(et.Where))}
	fields[WhereNot] = &graphql.InputObjectFieldConfig{Type: et.Where}
	if et.ExistsWhere != nil {
		fields[WhereExists] = &graphql.InputObjectFieldConfig{Type: et.ExistsWhere}
		fields[WhereNotExists] = &graphql.InputObjectFieldConfig{Type: et.ExistsWhere}
	}
	return fields
}

// filterFields returns the criteria of scalar and embedded fields.
func (b *builder) filterFields(fields []*introspection.FieldDescriptor) graphql.InputObjectConfigFieldMap {
	out := graphql.InputObjectConfigFieldMap{}
	for _, f := range fields {
		if f.Ignored {
			continue
		}
		switch f.Kind {
		case introspection.KindScalar:
			if !f.Filterable || !f.Scalar.Filterable() {
				continue
			}
			out[f.Name] = &graphql.InputObjectFieldConfig{Type: b.criteriaInput(f.Scalar), Description: f.Description}
		case introspection.KindEmbedded:
			if input := b.embeddedWhereInput(f.Embedded); input != nil {
				out[f.Name] = &graphql.InputObjectFieldConfig{Type: input, Description: f.Description}
			}
		}
	}
	return out
}

func (b *builder) embeddedWhereInput(d *introspection.EmbeddedDescriptor) *graphql.InputObject {
	if cached, ok := b.embeddedWhere[d.Name]; ok {
		return cached
	}
	fields := b.filterFields(d.Fields)
	if len(fields) == 0 {
		b.embeddedWhere[d.Name] = nil
		return nil
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   d.Name + "Where",
		Fields: fields,
	})
	b.embeddedWhere[d.Name] = input
	return input
}

// criteriaInput returns the shared <Kind>Criteria input listing the operators
// valid for the kind.
func (b *builder) criteriaInput(kind sqltype.Kind) *graphql.InputObject {
	if cached, ok := b.criteria[kind]; ok {
		return cached
	}
	scalar := b.registry.GraphQLType(kind)
	fields := graphql.InputObjectConfigFieldMap{}
	for _, op := range sqltype.OperatorsFor(kind) {
		var t graphql.Input = scalar
		switch {
		case op == sqltype.IS_NULL:
			t = graphql.Boolean
		case op.TakesList():
			t = graphql.NewList(graphql.NewNonNull(scalar))
		}
		fields[op.String()] = &graphql.InputObjectFieldConfig{Type: t, Description: operatorDescriptions[op]}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        kind.CriteriaTypeName(),
		Description: fmt.Sprintf("Comparisons for %s fields. Entries are combined with AND.", kind),
		Fields:      fields,
	})
	b.criteria[kind] = input
	return input
}

var operatorDescriptions = map[sqltype.Operator]string{
	sqltype.EQ:          "Equal. Null matches missing values.",
	sqltype.NE:          "Not equal. Missing values match unless the operand is null.",
	sqltype.GT:          "Greater than.",
	sqltype.GE:          "Greater than or equal.",
	sqltype.LT:          "Less than.",
	sqltype.LE:          "Less than or equal.",
	sqltype.BETWEEN:     "Inclusive range given as [low, high].",
	sqltype.NOT_BETWEEN: "Outside the inclusive range [low, high], or missing.",
	sqltype.IN:          "Member of the list.",
	sqltype.NIN:         "Not a member of the list, or missing.",
	sqltype.LIKE:        "SQL pattern match using % and _ wildcards.",
	sqltype.LOCATE:      "Contains the substring.",
	sqltype.IS_NULL:     "True matches missing values, false matches present ones.",
}
