package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"entitygraph/internal/introspection"
	"entitygraph/internal/scalars"
	"entitygraph/internal/sqltype"
)

// Resolvers supplies the root field resolvers. Nested fields read their value
// from the tree produced by the root resolver (see FromSource).
type Resolvers interface {
	// ResolveQuery serves the plural query field of an entity.
	ResolveQuery(entity *introspection.EntityDescriptor) graphql.FieldResolveFn
	// ResolveLookup serves the singular lookup-by-identifier field.
	ResolveLookup(entity *introspection.EntityDescriptor) graphql.FieldResolveFn
}

// EntityTypes are the generated types of one entity. Optional types are nil
// when the entity has nothing to put in them.
type EntityTypes struct {
	Result          *graphql.Object
	Where           *graphql.InputObject
	ExistsWhere     *graphql.InputObject
	OrderInput      *graphql.InputObject
	FieldEnum       *graphql.Enum
	AssociationEnum *graphql.Enum
	Aggregate       *graphql.Object
	Group           *graphql.Object
	AggregateBy     *graphql.Object
	Query           *graphql.Object
}

// Types is the built schema.
type Types struct {
	Schema   graphql.Schema
	entities map[string]*EntityTypes
}

// Entity returns the generated types of an entity.
func (t *Types) Entity(name string) (*EntityTypes, bool) {
	et, ok := t.entities[name]
	return et, ok
}

type builder struct {
	registry  *scalars.Registry
	opts      Options
	resolvers Resolvers

	entities      map[string]*EntityTypes
	embedded      map[string]*graphql.Object
	embeddedWhere map[string]*graphql.InputObject
	criteria      map[sqltype.Kind]*graphql.InputObject

	direction      *graphql.Enum
	pageInput      *graphql.InputObject
	positiveInt    *graphql.Scalar
	nonNegativeInt *graphql.Scalar
}

// Build derives the GraphQL schema from the descriptor graph.
func Build(graph *introspection.Graph, registry *scalars.Registry, opts Options, resolvers Resolvers) (*Types, error) {
	if graph == nil || registry == nil || resolvers == nil {
		return nil, fmt.Errorf("schema build requires a graph, a registry and resolvers")
	}
	b := &builder{
		registry:       registry,
		opts:           opts,
		resolvers:      resolvers,
		entities:       make(map[string]*EntityTypes),
		embedded:       make(map[string]*graphql.Object),
		embeddedWhere:  make(map[string]*graphql.InputObject),
		criteria:       make(map[sqltype.Kind]*graphql.InputObject),
		positiveInt:    scalars.PositiveInt(),
		nonNegativeInt: scalars.NonNegativeInt(),
	}
	b.direction = graphql.NewEnum(graphql.EnumConfig{
		Name:        "OrderBy",
		Description: "Sort direction.",
		Values: graphql.EnumValueConfigMap{
			DirectionAsc:  &graphql.EnumValueConfig{Value: DirectionAsc},
			DirectionDesc: &graphql.EnumValueConfig{Value: DirectionDesc},
		},
	})
	b.pageInput = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        "PageInput",
		Description: "1-based page number and page size.",
		Fields: graphql.InputObjectConfigFieldMap{
			PageStart: &graphql.InputObjectFieldConfig{Type: b.positiveInt, DefaultValue: 1},
			PageLimit: &graphql.InputObjectFieldConfig{Type: b.nonNegativeInt},
		},
	})

	entities := graph.DescribeAll()
	// Declare every entity before any thunk runs so associations can
	// reference types of entities declared later.
	for _, e := range entities {
		b.declare(e)
	}

	queryFields := graphql.Fields{}
	for _, e := range entities {
		et := b.entities[e.Name]
		queryFields[e.PluralName] = &graphql.Field{
			Type:        graphql.NewNonNull(et.Query),
			Description: fmt.Sprintf("Query %s entities.", e.Name),
			Args:        b.queryArgs(e),
			Resolve:     resolvers.ResolveQuery(e),
		}
		queryFields[e.Name] = &graphql.Field{
			Type:        et.Result,
			Description: fmt.Sprintf("Look up one %s by identifier.", e.Name),
			Args:        b.lookupArgs(e),
			Resolve:     resolvers.ResolveLookup(e),
		}
	}
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Placeholder field when the model has no entities",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No entities found in model", nil
			},
		}
	}

	s, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	return &Types{Schema: s, entities: b.entities}, nil
}

// declare creates the types of an entity. Fields are thunks resolved by
// graphql.NewSchema once every entity is declared.
func (b *builder) declare(e *introspection.EntityDescriptor) {
	et := &EntityTypes{}
	b.entities[e.Name] = et

	et.Result = graphql.NewObject(graphql.ObjectConfig{
		Name:        e.Name,
		Description: e.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.resultFields(e)
		}),
	})

	if refs := FieldRefs(e); len(refs) > 0 {
		values := graphql.EnumValueConfigMap{}
		for _, ref := range refs {
			values[ref.Name] = &graphql.EnumValueConfig{Value: ref.Name, Description: ref.Field.Description}
		}
		et.FieldEnum = graphql.NewEnum(graphql.EnumConfig{Name: e.Name + "Field", Values: values})
		et.OrderInput = graphql.NewInputObject(graphql.InputObjectConfig{
			Name: e.Name + "OrderInput",
			Fields: graphql.InputObjectConfigFieldMap{
				OrderField:     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(et.FieldEnum)},
				OrderDirection: &graphql.InputObjectFieldConfig{Type: b.direction, DefaultValue: DirectionAsc},
			},
		})
	}

	associations := e.Associations()
	if len(associations) > 0 {
		values := graphql.EnumValueConfigMap{}
		for _, f := range associations {
			values[f.Name] = &graphql.EnumValueConfig{Value: f.Name, Description: f.Description}
		}
		et.AssociationEnum = graphql.NewEnum(graphql.EnumConfig{Name: e.Name + "Association", Values: values})
		et.ExistsWhere = graphql.NewInputObject(graphql.InputObjectConfig{
			Name:        e.Name + "ExistsWhere",
			Description: fmt.Sprintf("Association filters of %s that must (or must not) match at least one row.", e.Name),
			Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
				fields := graphql.InputObjectConfigFieldMap{}
				for _, f := range associations {
					fields[f.Name] = &graphql.InputObjectFieldConfig{Type: b.entities[f.Target.Name].Where}
				}
				return fields
			}),
		})
	}

	et.Where = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        e.Name + "Where",
		Description: fmt.Sprintf("Filter for %s. Sibling entries are combined with AND.", e.Name),
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			return b.whereFields(e, et)
		}),
	})

	if b.opts.EnableAggregate {
		b.declareAggregate(e, et)
	}

	queryFields := graphql.Fields{
		FieldSelect: &graphql.Field{
			Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(et.Result))),
			Resolve: FromSource,
		},
		FieldTotal: &graphql.Field{
			Type:        b.registry.GraphQLType(sqltype.Long),
			Description: "Number of rows matching the filter, ignoring paging.",
			Resolve:     FromSource,
		},
		FieldPages: &graphql.Field{
			Type:        graphql.Int,
			Description: "Number of pages for the requested page size.",
			Resolve:     FromSource,
		},
	}
	if et.Aggregate != nil {
		queryFields[FieldAggregate] = &graphql.Field{Type: et.Aggregate, Resolve: FromSource}
	}
	et.Query = graphql.NewObject(graphql.ObjectConfig{Name: e.PluralName, Fields: queryFields})
}

func (b *builder) resultFields(e *introspection.EntityDescriptor) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range e.VisibleFields() {
		switch f.Kind {
		case introspection.KindScalar:
			fields[f.Name] = b.scalarField(f)
		case introspection.KindEmbedded:
			fields[f.Name] = &graphql.Field{
				Type:        b.embeddedObject(f.Embedded),
				Description: f.Description,
				Resolve:     FromSource,
			}
		case introspection.KindToOne:
			target := b.entities[f.Target.Name]
			fields[f.Name] = &graphql.Field{
				Type:        target.Result,
				Description: f.Description,
				Args: graphql.FieldConfigArgument{
					ArgWhere:    &graphql.ArgumentConfig{Type: target.Where},
					ArgOptional: &graphql.ArgumentConfig{Type: graphql.Boolean},
				},
				Resolve: FromSource,
			}
		case introspection.KindToMany:
			target := b.entities[f.Target.Name]
			args := graphql.FieldConfigArgument{
				ArgWhere:    &graphql.ArgumentConfig{Type: target.Where},
				ArgPage:     &graphql.ArgumentConfig{Type: b.pageInput},
				ArgOptional: &graphql.ArgumentConfig{Type: graphql.Boolean},
			}
			if target.OrderInput != nil {
				args[ArgOrderBy] = &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(target.OrderInput))}
			}
			fields[f.Name] = &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(target.Result))),
				Description: f.Description,
				Args:        args,
				Resolve:     FromSource,
			}
		}
	}
	return fields
}

func (b *builder) scalarField(f *introspection.FieldDescriptor) *graphql.Field {
	var out graphql.Output = b.registry.GraphQLType(f.Scalar)
	if !f.Nullable || f.Identifier {
		out = graphql.NewNonNull(out)
	}
	field := &graphql.Field{Type: out, Description: f.Description, Resolve: FromSource}
	if f.Orderable {
		field.Args = graphql.FieldConfigArgument{
			ArgOrderBy: &graphql.ArgumentConfig{Type: b.direction},
		}
	}
	return field
}

func (b *builder) embeddedObject(d *introspection.EmbeddedDescriptor) *graphql.Object {
	if cached, ok := b.embedded[d.Name]; ok {
		return cached
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: d.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range d.Fields {
				if f.Ignored {
					continue
				}
				switch f.Kind {
				case introspection.KindScalar:
					fields[f.Name] = b.scalarField(f)
				case introspection.KindEmbedded:
					fields[f.Name] = &graphql.Field{Type: b.embeddedObject(f.Embedded), Resolve: FromSource}
				}
			}
			return fields
		}),
	})
	b.embedded[d.Name] = obj
	return obj
}

func (b *builder) queryArgs(e *introspection.EntityDescriptor) graphql.FieldConfigArgument {
	et := b.entities[e.Name]
	args := graphql.FieldConfigArgument{
		ArgWhere: &graphql.ArgumentConfig{Type: et.Where},
		ArgPage:  &graphql.ArgumentConfig{Type: b.pageInput},
	}
	if et.OrderInput != nil {
		args[ArgOrderBy] = &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(et.OrderInput))}
	}
	if b.opts.UseDistinctParameter {
		args[ArgDistinct] = &graphql.ArgumentConfig{
			Type:         graphql.Boolean,
			DefaultValue: b.opts.DefaultDistinct,
		}
	}
	return args
}

func (b *builder) lookupArgs(e *introspection.EntityDescriptor) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{}
	for _, id := range e.Identifiers {
		args[id.Name] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.registry.GraphQLType(id.Scalar))}
	}
	return args
}
