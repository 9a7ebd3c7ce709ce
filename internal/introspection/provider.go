// Package introspection builds the immutable entity descriptor graph from a
// metadata source. The graph is built once at startup and shared read-only by
// the schema builder, the query compiler and the result shaper.
package introspection

import "context"

// MetadataProvider is the read-only source of entity metadata.
// Implementations exist for information_schema and for YAML model files.
type MetadataProvider interface {
	ListEntities(ctx context.Context) ([]EntityMeta, error)
	DescribeFields(ctx context.Context, entity string) ([]FieldMeta, error)
	DescribeRelations(ctx context.Context, entity string) ([]RelationMeta, error)
}

// EntityMeta describes one entity or embeddable type.
type EntityMeta struct {
	// Name is the API name. When empty the Namer derives it from Table.
	Name        string
	Table       string
	Description string
	// Embeddable types have no table of their own; their fields are stored
	// in the table of the entity embedding them.
	Embeddable bool
}

// Key identifies the entity in DescribeFields, DescribeRelations and
// RelationMeta.Target.
func (m EntityMeta) Key() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Table
}

// FieldMeta describes a scalar or embedded field.
type FieldMeta struct {
	// Name is the API name. When empty the Namer derives it from Column.
	Name   string
	Column string
	// SQLType is mapped with sqltype.FromSQLType unless Scalar is set.
	SQLType string
	// Scalar is an explicit scalar kind name, e.g. "LocalDate".
	Scalar     string
	Nullable   bool
	Identifier bool
	Ignored    bool
	Orderable  bool
	Filterable bool
	// Embedded names an embeddable type. Column then acts as the column
	// prefix for the embedded fields.
	Embedded    string
	Description string
}

// RelationMeta describes an association to another entity.
type RelationMeta struct {
	// Name is the API name. When empty the Namer derives it.
	Name   string
	Target string
	ToMany bool
	// MappedBy marks the inverse side and names the owning association on
	// Target. Join columns are taken from the owning side when omitted.
	MappedBy string
	// Inverse marks a mapped-by side declared with explicit join columns.
	Inverse     bool
	JoinColumns []JoinColumn
	Junction    *JunctionMeta
	Optional    bool
	Ignored     bool
	Description string
}

// JoinColumn pairs a column of the declaring entity with one of the target.
type JoinColumn struct {
	Local  string
	Remote string
}

// JunctionMeta describes the link table of a many-to-many association.
// Source pairs declaring-entity columns (Local) with junction columns
// (Remote); Target pairs junction columns (Local) with target columns (Remote).
type JunctionMeta struct {
	Table  string
	Source []JoinColumn
	Target []JoinColumn
}
