package introspection

import (
	"fmt"

	"entitygraph/internal/sqltype"
)

// FieldKind tags the variant of a FieldDescriptor.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindEmbedded
	KindToOne
	KindToMany
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEmbedded:
		return "embedded"
	case KindToOne:
		return "to-one"
	case KindToMany:
		return "to-many"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// EntityDescriptor is the immutable description of one entity.
type EntityDescriptor struct {
	Name        string
	PluralName  string
	Table       string
	Description string
	// Fields keeps declaration order; names are unique.
	Fields      []*FieldDescriptor
	Identifiers []*FieldDescriptor

	byName map[string]*FieldDescriptor
}

// Field returns the field with the given name, including ignored fields.
func (e *EntityDescriptor) Field(name string) (*FieldDescriptor, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// Visible returns the non-ignored field with the given name.
func (e *EntityDescriptor) Visible(name string) (*FieldDescriptor, bool) {
	f, ok := e.byName[name]
	if !ok || f.Ignored {
		return nil, false
	}
	return f, true
}

// VisibleFields returns the non-ignored fields in declaration order.
func (e *EntityDescriptor) VisibleFields() []*FieldDescriptor {
	out := make([]*FieldDescriptor, 0, len(e.Fields))
	for _, f := range e.Fields {
		if !f.Ignored {
			out = append(out, f)
		}
	}
	return out
}

// Associations returns the non-ignored to-one and to-many fields.
func (e *EntityDescriptor) Associations() []*FieldDescriptor {
	var out []*FieldDescriptor
	for _, f := range e.Fields {
		if !f.Ignored && f.IsAssociation() {
			out = append(out, f)
		}
	}
	return out
}

// ScalarColumns returns every non-ignored scalar leaf, flattening embedded
// fields. Each entry carries the field path from the entity.
func (e *EntityDescriptor) ScalarColumns() []ScalarPath {
	var out []ScalarPath
	collectScalars(e.Fields, nil, &out)
	return out
}

// ScalarPath is a scalar leaf reached through zero or more embedded fields.
type ScalarPath struct {
	Path  []string
	Field *FieldDescriptor
}

func collectScalars(fields []*FieldDescriptor, prefix []string, out *[]ScalarPath) {
	for _, f := range fields {
		if f.Ignored {
			continue
		}
		path := append(append([]string(nil), prefix...), f.Name)
		switch f.Kind {
		case KindScalar:
			*out = append(*out, ScalarPath{Path: path, Field: f})
		case KindEmbedded:
			collectScalars(f.Embedded.Fields, path, out)
		case KindToOne, KindToMany:
		}
	}
}

// FieldDescriptor is the immutable description of one field.
type FieldDescriptor struct {
	Name        string
	Kind        FieldKind
	Description string
	Ignored     bool

	// Scalar fields.
	Scalar     sqltype.Kind
	Column     string
	Nullable   bool
	Orderable  bool
	Filterable bool
	Identifier bool

	// Embedded fields.
	Embedded *EmbeddedDescriptor

	// Associations.
	Target *EntityDescriptor
	// Owning is false for the mapped-by inverse side.
	Owning   bool
	MappedBy string
	// Optional associations may be absent; selecting them uses an outer join.
	Optional bool
	// JoinColumns pair declaring-entity columns with target columns. Empty
	// when Junction is set.
	JoinColumns []JoinColumn
	Junction    *JunctionMeta
}

// IsAssociation reports whether the field references another entity.
func (f *FieldDescriptor) IsAssociation() bool {
	return f.Kind == KindToOne || f.Kind == KindToMany
}

// EmbeddedDescriptor is a value type stored inline in its owner's table.
type EmbeddedDescriptor struct {
	Name   string
	Fields []*FieldDescriptor

	byName map[string]*FieldDescriptor
}

// Field returns the non-ignored embedded field with the given name.
func (d *EmbeddedDescriptor) Field(name string) (*FieldDescriptor, bool) {
	f, ok := d.byName[name]
	if !ok || f.Ignored {
		return nil, false
	}
	return f, true
}

// Graph is the immutable set of entity descriptors.
type Graph struct {
	entities []*EntityDescriptor
	byName   map[string]*EntityDescriptor
}

// Describe returns the descriptor for an entity by API name.
func (g *Graph) Describe(name string) (*EntityDescriptor, error) {
	if e, ok := g.byName[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
}

// DescribeAll returns every entity in deterministic order.
func (g *Graph) DescribeAll() []*EntityDescriptor {
	out := make([]*EntityDescriptor, len(g.entities))
	copy(out, g.entities)
	return out
}
