package introspection

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelFile is the YAML document read by ModelFileProvider.
//
//	embeddables:
//	  - name: Address
//	    fields:
//	      - {name: city, column: city, type: String}
//	entities:
//	  - name: Task
//	    table: tasks
//	    fields:
//	      - {name: id, column: id, type: Long, identifier: true}
//	      - {name: address, embedded: Address, column: addr_}
//	    relations:
//	      - {name: variables, target: TaskVariable, to_many: true, mapped_by: task}
type ModelFile struct {
	Embeddables []ModelEntity `yaml:"embeddables"`
	Entities    []ModelEntity `yaml:"entities"`
}

// ModelEntity is one entity or embeddable in a model file.
type ModelEntity struct {
	Name        string          `yaml:"name"`
	Table       string          `yaml:"table"`
	Description string          `yaml:"description"`
	Fields      []ModelField    `yaml:"fields"`
	Relations   []ModelRelation `yaml:"relations"`
}

// ModelField is one scalar or embedded field in a model file.
type ModelField struct {
	Name        string `yaml:"name"`
	Column      string `yaml:"column"`
	Type        string `yaml:"type"`
	SQLType     string `yaml:"sql_type"`
	Nullable    bool   `yaml:"nullable"`
	Identifier  bool   `yaml:"identifier"`
	Ignored     bool   `yaml:"ignored"`
	Orderable   *bool  `yaml:"orderable"`
	Filterable  *bool  `yaml:"filterable"`
	Embedded    string `yaml:"embedded"`
	Description string `yaml:"description"`
}

// ModelRelation is one association in a model file.
type ModelRelation struct {
	Name        string         `yaml:"name"`
	Target      string         `yaml:"target"`
	ToMany      bool           `yaml:"to_many"`
	MappedBy    string         `yaml:"mapped_by"`
	JoinColumns []JoinColumn   `yaml:"join_columns"`
	Junction    *ModelJunction `yaml:"junction"`
	Optional    *bool          `yaml:"optional"`
	Ignored     bool           `yaml:"ignored"`
	Description string         `yaml:"description"`
}

// ModelJunction is the link table of a many-to-many relation in a model file.
type ModelJunction struct {
	Table  string       `yaml:"table"`
	Source []JoinColumn `yaml:"source"`
	Target []JoinColumn `yaml:"target"`
}

// ModelFileProvider serves metadata from a parsed model file. It is used for
// stores without an information_schema and in tests.
type ModelFileProvider struct {
	model  ModelFile
	byName map[string]*ModelEntity
}

// LoadModelFile reads and parses a YAML model file.
func LoadModelFile(path string) (*ModelFileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseModelFile(data)
}

// ParseModelFile parses YAML model data. Unknown keys are rejected.
func ParseModelFile(data []byte) (*ModelFileProvider, error) {
	var model ModelFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return NewModelFileProvider(model)
}

// NewModelFileProvider wraps an in-memory model.
func NewModelFileProvider(model ModelFile) (*ModelFileProvider, error) {
	p := &ModelFileProvider{model: model, byName: make(map[string]*ModelEntity)}
	for _, group := range [][]ModelEntity{p.model.Embeddables, p.model.Entities} {
		for i := range group {
			e := &group[i]
			key := EntityMeta{Name: e.Name, Table: e.Table}.Key()
			if key == "" {
				return nil, fmt.Errorf("%w: model entity without name or table", ErrUnknownEntity)
			}
			if _, dup := p.byName[key]; dup {
				return nil, fmt.Errorf("%w: %s declared twice in model file", ErrDuplicateEntity, key)
			}
			p.byName[key] = e
		}
	}
	return p, nil
}

// ListEntities returns embeddables followed by entities in file order.
func (p *ModelFileProvider) ListEntities(_ context.Context) ([]EntityMeta, error) {
	out := make([]EntityMeta, 0, len(p.model.Embeddables)+len(p.model.Entities))
	for _, e := range p.model.Embeddables {
		out = append(out, EntityMeta{Name: e.Name, Table: e.Table, Description: e.Description, Embeddable: true})
	}
	for _, e := range p.model.Entities {
		out = append(out, EntityMeta{Name: e.Name, Table: e.Table, Description: e.Description})
	}
	return out, nil
}

// DescribeFields returns the fields of an entity or embeddable.
func (p *ModelFileProvider) DescribeFields(_ context.Context, entity string) ([]FieldMeta, error) {
	e, ok := p.byName[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	out := make([]FieldMeta, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, FieldMeta{
			Name:        f.Name,
			Column:      f.Column,
			SQLType:     f.SQLType,
			Scalar:      f.Type,
			Nullable:    f.Nullable,
			Identifier:  f.Identifier,
			Ignored:     f.Ignored,
			Orderable:   boolOr(f.Orderable, true),
			Filterable:  boolOr(f.Filterable, true),
			Embedded:    f.Embedded,
			Description: f.Description,
		})
	}
	return out, nil
}

// DescribeRelations returns the associations of an entity.
func (p *ModelFileProvider) DescribeRelations(_ context.Context, entity string) ([]RelationMeta, error) {
	e, ok := p.byName[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	out := make([]RelationMeta, 0, len(e.Relations))
	for _, r := range e.Relations {
		rel := RelationMeta{
			Name:        r.Name,
			Target:      r.Target,
			ToMany:      r.ToMany,
			MappedBy:    r.MappedBy,
			JoinColumns: r.JoinColumns,
			Optional:    boolOr(r.Optional, true),
			Ignored:     r.Ignored,
			Description: r.Description,
		}
		if r.Junction != nil {
			rel.Junction = &JunctionMeta{Table: r.Junction.Table, Source: r.Junction.Source, Target: r.Junction.Target}
		}
		out = append(out, rel)
	}
	return out, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
