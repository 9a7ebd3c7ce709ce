package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"entitygraph/internal/introspection"
	"entitygraph/internal/sqltype"
)

// declareAggregate creates <Entity>Aggregate, <Entity>Group and
// <Entity>AggregateBy.
func (b *builder) declareAggregate(e *introspection.EntityDescriptor, et *EntityTypes) {
	long := b.registry.GraphQLType(sqltype.Long)
	countField := func(description string) *graphql.Field {
		field := &graphql.Field{Type: long, Description: description, Resolve: FromSource}
		if et.AssociationEnum != nil {
			field.Args = graphql.FieldConfigArgument{
				ArgOf: &graphql.ArgumentConfig{
					Type:        et.AssociationEnum,
					Description: "Count distinct related rows of this association instead.",
				},
			}
		}
		return field
	}

	if et.FieldEnum != nil {
		et.Group = graphql.NewObject(graphql.ObjectConfig{
			Name:        e.Name + "Group",
			Description: fmt.Sprintf("One group of %s rows. Needs at least one by and exactly one count.", e.Name),
			Fields: graphql.Fields{
				FieldBy: &graphql.Field{
					Type: b.registry.GraphQLType(sqltype.Object),
					Args: graphql.FieldConfigArgument{
						ArgField:   &graphql.ArgumentConfig{Type: graphql.NewNonNull(et.FieldEnum)},
						ArgOrderBy: &graphql.ArgumentConfig{Type: b.direction},
					},
					Resolve: FromSource,
				},
				FieldCount: countField("Rows in the group."),
			},
		})
	}

	aggregateFields := graphql.Fields{
		FieldCount: countField("Rows matching the filter."),
	}
	if et.Group != nil {
		aggregateFields[FieldGroup] = &graphql.Field{
			Type:    graphql.NewList(graphql.NewNonNull(et.Group)),
			Resolve: FromSource,
		}
	}

	if associations := e.Associations(); len(associations) > 0 {
		et.AggregateBy = graphql.NewObject(graphql.ObjectConfig{
			Name:        e.Name + "AggregateBy",
			Description: fmt.Sprintf("Groups of rows related to the matching %s rows.", e.Name),
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				fields := graphql.Fields{}
				for _, f := range associations {
					target := b.entities[f.Target.Name]
					if target.Group == nil {
						continue
					}
					fields[f.Name] = &graphql.Field{
						Type:    graphql.NewList(graphql.NewNonNull(target.Group)),
						Resolve: FromSource,
					}
				}
				return fields
			}),
		})
		aggregateFields[FieldBy] = &graphql.Field{Type: et.AggregateBy, Resolve: FromSource}
	}

	et.Aggregate = graphql.NewObject(graphql.ObjectConfig{
		Name:   e.Name + "Aggregate",
		Fields: aggregateFields,
	})
}
