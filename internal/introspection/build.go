package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"entitygraph/internal/naming"
	"entitygraph/internal/observability"
	"entitygraph/internal/sqltype"
)

const tracerName = "entitygraph/introspection"

// Option customizes Build.
type Option func(*builder)

// WithNamer overrides the naming strategy used for names metadata leaves blank.
func WithNamer(namer *naming.Namer) Option {
	return func(b *builder) {
		if namer != nil {
			b.namer = namer
		}
	}
}

// WithLogger sets the logger used for build warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type builder struct {
	provider MetadataProvider
	namer    *naming.Namer
	logger   *slog.Logger
	names    *naming.Registry

	embeddables map[string]EntityMeta
	entities    []*EntityDescriptor
	byKey       map[string]*EntityDescriptor
	keys        map[*EntityDescriptor]string
	relations   map[string][]RelationMeta
	relSlots    map[string][]*FieldDescriptor
}

// Build walks the provider once and returns the immutable entity graph.
// It fails on duplicate or ambiguous names, unresolvable relations and
// entities without identifiers.
func Build(ctx context.Context, provider MetadataProvider, opts ...Option) (*Graph, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.build")
	defer span.End()

	b := &builder{
		provider:    provider,
		namer:       naming.Default(),
		logger:      slog.Default(),
		names:       naming.NewRegistry(),
		embeddables: make(map[string]EntityMeta),
		byKey:       make(map[string]*EntityDescriptor),
		keys:        make(map[*EntityDescriptor]string),
		relations:   make(map[string][]RelationMeta),
		relSlots:    make(map[string][]*FieldDescriptor),
	}
	for _, opt := range opts {
		opt(b)
	}

	graph, err := b.build(ctx)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("entity.count", len(graph.entities)))
	return graph, nil
}

func (b *builder) build(ctx context.Context) (*Graph, error) {
	metas, err := b.provider.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	for _, meta := range metas {
		if meta.Embeddable {
			b.embeddables[meta.Key()] = meta
			continue
		}
		if err := b.declareEntity(meta); err != nil {
			return nil, err
		}
	}
	if err := b.checkGeneratedNames(); err != nil {
		return nil, err
	}

	for _, entity := range b.entities {
		if err := b.buildFields(ctx, entity); err != nil {
			return nil, err
		}
	}

	for _, entity := range b.entities {
		key := b.keyOf(entity)
		rels, err := b.provider.DescribeRelations(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to describe relations of %s: %w", entity.Name, err)
		}
		b.relations[key] = rels
		b.relSlots[key] = make([]*FieldDescriptor, len(rels))
	}

	// Owning sides first so inverse sides can borrow their join columns.
	for _, owning := range []bool{true, false} {
		for _, entity := range b.entities {
			if err := b.buildRelations(entity, owning); err != nil {
				return nil, err
			}
		}
	}

	graph := &Graph{byName: make(map[string]*EntityDescriptor, len(b.entities))}
	for _, entity := range b.entities {
		for _, slot := range b.relSlots[b.keyOf(entity)] {
			if slot != nil {
				entity.Fields = append(entity.Fields, slot)
			}
		}
		entity.byName = make(map[string]*FieldDescriptor, len(entity.Fields))
		for _, f := range entity.Fields {
			entity.byName[f.Name] = f
		}
		graph.entities = append(graph.entities, entity)
		graph.byName[entity.Name] = entity
	}
	b.linkMappedBy()

	sort.SliceStable(graph.entities, func(i, j int) bool {
		return graph.entities[i].Name < graph.entities[j].Name
	})
	return graph, nil
}

func (b *builder) keyOf(entity *EntityDescriptor) string {
	return b.keys[entity]
}

func (b *builder) declareEntity(meta EntityMeta) error {
	name := meta.Name
	if name == "" {
		name = b.namer.EntityName(meta.Table)
	}
	if name == "" {
		return fmt.Errorf("%w: entity without name or table", ErrUnknownEntity)
	}
	if err := b.names.Register("", name, "entity:"+meta.Key()); err != nil {
		return fmt.Errorf("%w: %v", ErrDuplicateEntity, err)
	}
	table := meta.Table
	if table == "" {
		table = meta.Name
	}
	entity := &EntityDescriptor{
		Name:        name,
		PluralName:  b.namer.PluralName(name),
		Table:       table,
		Description: meta.Description,
	}
	b.entities = append(b.entities, entity)
	b.byKey[meta.Key()] = entity
	b.keys[entity] = meta.Key()
	return nil
}

// checkGeneratedNames rejects entity names that equal another entity's
// derived type name, e.g. an entity named TaskWhere next to Task.
func (b *builder) checkGeneratedNames() error {
	for _, entity := range b.entities {
		for _, suffix := range naming.GeneratedSuffixes {
			if b.names.Exists("", entity.Name+suffix) {
				return fmt.Errorf("%w: %s collides with the %s type derived from %s",
					ErrDuplicateEntity, entity.Name+suffix, suffix, entity.Name)
			}
		}
		if b.names.Exists("", entity.PluralName) && entity.PluralName != entity.Name {
			return fmt.Errorf("%w: plural %s of %s collides with an entity", ErrDuplicateEntity, entity.PluralName, entity.Name)
		}
	}
	return nil
}

func (b *builder) buildFields(ctx context.Context, entity *EntityDescriptor) error {
	key := b.keyOf(entity)
	fields, err := b.provider.DescribeFields(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to describe fields of %s: %w", entity.Name, err)
	}

	for _, meta := range fields {
		field, err := b.buildField(ctx, entity.Name, meta, "", []string{key})
		if err != nil {
			return err
		}
		if err := b.names.Register(entity.Name, field.Name, "field:"+meta.Column); err != nil {
			return fmt.Errorf("%w: %v", ErrDuplicateField, err)
		}
		entity.Fields = append(entity.Fields, field)
		if field.Identifier && !field.Ignored {
			entity.Identifiers = append(entity.Identifiers, field)
		}
	}

	if len(entity.Identifiers) == 0 {
		return fmt.Errorf("%w: %s", ErrNoIdentifier, entity.Name)
	}
	return nil
}

func (b *builder) buildField(ctx context.Context, scope string, meta FieldMeta, prefix string, stack []string) (*FieldDescriptor, error) {
	name := meta.Name
	if name == "" {
		name = b.namer.FieldName(meta.Column)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: field without name or column in %s", ErrDuplicateField, scope)
	}

	if meta.Embedded != "" {
		embedded, err := b.buildEmbedded(ctx, scope+"."+name, meta.Embedded, prefix+meta.Column, stack)
		if err != nil {
			return nil, err
		}
		return &FieldDescriptor{
			Name:        name,
			Kind:        KindEmbedded,
			Description: meta.Description,
			Ignored:     meta.Ignored,
			Nullable:    meta.Nullable,
			Embedded:    embedded,
		}, nil
	}

	kind := sqltype.FromSQLType(meta.SQLType)
	if meta.Scalar != "" {
		parsed, ok := sqltype.ParseKind(meta.Scalar)
		if !ok {
			b.logger.Warn("unknown scalar type, falling back to Object",
				slog.String("entity", scope),
				slog.String("field", name),
				slog.String("type", meta.Scalar),
			)
		}
		kind = parsed
	}

	return &FieldDescriptor{
		Name:        name,
		Kind:        KindScalar,
		Description: meta.Description,
		Ignored:     meta.Ignored,
		Scalar:      kind,
		Column:      prefix + meta.Column,
		Nullable:    meta.Nullable,
		Orderable:   meta.Orderable && kind != sqltype.Object,
		Filterable:  meta.Filterable && kind.Filterable(),
		Identifier:  meta.Identifier,
	}, nil
}

func (b *builder) buildEmbedded(ctx context.Context, scope, key, prefix string, stack []string) (*EmbeddedDescriptor, error) {
	for _, seen := range stack {
		if seen == key {
			return nil, fmt.Errorf("%w: %s -> %s", ErrEmbeddedCycle, strings.Join(stack, " -> "), key)
		}
	}
	meta, ok := b.embeddables[key]
	if !ok {
		return nil, fmt.Errorf("%w: embedded type %s referenced by %s", ErrUnknownEntity, key, scope)
	}

	fields, err := b.provider.DescribeFields(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to describe fields of %s: %w", key, err)
	}

	name := meta.Name
	if name == "" {
		name = b.namer.EntityName(key)
	}
	embedded := &EmbeddedDescriptor{Name: name, byName: make(map[string]*FieldDescriptor, len(fields))}
	nextStack := append(append([]string(nil), stack...), key)
	for _, fm := range fields {
		fm.Identifier = false
		field, err := b.buildField(ctx, scope, fm, prefix, nextStack)
		if err != nil {
			return nil, err
		}
		if err := b.names.Register(scope, field.Name, "field:"+fm.Column); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateField, err)
		}
		embedded.Fields = append(embedded.Fields, field)
		embedded.byName[field.Name] = field
	}
	return embedded, nil
}

func isOwning(meta RelationMeta) bool {
	return meta.MappedBy == "" && !meta.Inverse
}

func (b *builder) buildRelations(entity *EntityDescriptor, owning bool) error {
	key := b.keyOf(entity)
	rels := b.relations[key]

	// Derived to-many names disambiguate when a target is referenced twice.
	targetCounts := make(map[string]int)
	for _, rel := range rels {
		if rel.ToMany && rel.Name == "" {
			targetCounts[rel.Target]++
		}
	}

	for i, rel := range rels {
		if isOwning(rel) != owning {
			continue
		}
		target, ok := b.byKey[rel.Target]
		if !ok {
			if rel.Ignored {
				continue
			}
			return fmt.Errorf("%w: relation of %s targets %s", ErrUnknownEntity, entity.Name, rel.Target)
		}

		field := &FieldDescriptor{
			Kind:        KindToOne,
			Description: rel.Description,
			Ignored:     rel.Ignored,
			Target:      target,
			Owning:      owning,
			MappedBy:    rel.MappedBy,
			Optional:    rel.Optional,
			JoinColumns: rel.JoinColumns,
			Junction:    rel.Junction,
		}
		if rel.ToMany {
			field.Kind = KindToMany
		}

		if !owning && len(field.JoinColumns) == 0 && field.Junction == nil {
			if err := b.borrowJoin(entity, target, field); err != nil {
				return err
			}
		}
		if len(field.JoinColumns) == 0 && field.Junction == nil {
			return fmt.Errorf("%w: %s relation to %s has no join columns", ErrInvalidRelation, entity.Name, target.Name)
		}

		name := rel.Name
		derived := name == ""
		if derived {
			name = b.deriveRelationName(target, field, targetCounts[rel.Target] <= 1)
			name = b.namer.DisambiguateAssociation(name, field.Kind == KindToOne, func(candidate string) bool {
				return b.names.Exists(entity.Name, candidate)
			})
		}
		field.Name = name
		if err := b.names.Register(entity.Name, name, "relation:"+rel.Target); err != nil {
			return fmt.Errorf("%w: %v", ErrDuplicateField, err)
		}
		b.relSlots[key][i] = field
	}
	return nil
}

func (b *builder) deriveRelationName(target *EntityDescriptor, field *FieldDescriptor, unique bool) string {
	switch {
	case field.Kind == KindToOne && field.Owning:
		return b.namer.ToOneName(field.JoinColumns[0].Local)
	case field.Kind == KindToOne:
		return b.namer.FieldName(target.Name)
	case field.Junction != nil:
		return b.namer.ManyToManyName(target.Table)
	default:
		return b.namer.ToManyName(target.Table, field.JoinColumns[0].Remote, unique)
	}
}

// borrowJoin copies the reversed join of the owning association named by
// MappedBy on the target.
func (b *builder) borrowJoin(entity, target *EntityDescriptor, field *FieldDescriptor) error {
	if field.MappedBy == "" {
		return fmt.Errorf("%w: inverse relation of %s to %s needs mapped_by or join columns",
			ErrInvalidRelation, entity.Name, target.Name)
	}
	owner := b.findOwning(target, field.MappedBy)
	if owner == nil || owner.Target != entity {
		return fmt.Errorf("%w: %s.%s is not an owning association to %s",
			ErrInvalidRelation, target.Name, field.MappedBy, entity.Name)
	}
	field.JoinColumns = reverseJoin(owner.JoinColumns)
	if owner.Junction != nil {
		field.Junction = &JunctionMeta{
			Table:  owner.Junction.Table,
			Source: reverseJoin(owner.Junction.Target),
			Target: reverseJoin(owner.Junction.Source),
		}
	}
	return nil
}

func (b *builder) findOwning(entity *EntityDescriptor, name string) *FieldDescriptor {
	for _, slot := range b.relSlots[b.keyOf(entity)] {
		if slot != nil && slot.Owning && slot.Name == name {
			return slot
		}
	}
	return nil
}

// linkMappedBy fills MappedBy for inverse sides declared with explicit join columns.
func (b *builder) linkMappedBy() {
	for _, entity := range b.entities {
		for _, f := range entity.Fields {
			if !f.IsAssociation() || f.Owning || f.MappedBy != "" {
				continue
			}
			for _, candidate := range f.Target.Fields {
				if candidate.IsAssociation() && candidate.Owning && candidate.Target == entity &&
					sameJoin(candidate, f) {
					f.MappedBy = candidate.Name
					break
				}
			}
		}
	}
}

func sameJoin(owner, inverse *FieldDescriptor) bool {
	if owner.Junction != nil || inverse.Junction != nil {
		if owner.Junction == nil || inverse.Junction == nil {
			return false
		}
		return owner.Junction.Table == inverse.Junction.Table &&
			equalJoin(owner.Junction.Source, reverseJoin(inverse.Junction.Target))
	}
	return equalJoin(owner.JoinColumns, reverseJoin(inverse.JoinColumns))
}

func equalJoin(a, b []JoinColumn) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reverseJoin(cols []JoinColumn) []JoinColumn {
	out := make([]JoinColumn, len(cols))
	for i, c := range cols {
		out[i] = JoinColumn{Local: c.Remote, Remote: c.Local}
	}
	return out
}
