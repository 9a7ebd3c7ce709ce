// Package schemafilter hides tables and columns from a metadata source using
// allow/deny glob lists.
package schemafilter

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"

	"entitygraph/internal/introspection"
)

// Config controls allow/deny filters for tables and columns. Column lists
// are keyed by table name; the "*" key applies to every table. Patterns use
// path.Match syntax and match case-insensitively.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`
}

// Empty reports whether cfg filters nothing.
func (c Config) Empty() bool {
	return len(c.AllowTables) == 0 && len(c.DenyTables) == 0 &&
		len(c.AllowColumns) == 0 && len(c.DenyColumns) == 0
}

// Provider applies a Config to another MetadataProvider. Missing allow lists
// default to allow-all; deny rules always win. Identifier columns and
// embeddable types are never hidden, and associations to hidden entities or
// through hidden columns are dropped with them.
type Provider struct {
	inner introspection.MetadataProvider
	cfg   Config

	mu     sync.Mutex
	loaded bool
	tables map[string]string
	hidden map[string]bool
}

// Wrap returns a Provider filtering inner by cfg.
func Wrap(inner introspection.MetadataProvider, cfg Config) *Provider {
	return &Provider{inner: inner, cfg: cfg}
}

func (p *Provider) ListEntities(ctx context.Context) ([]introspection.EntityMeta, error) {
	entities, err := p.inner.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]string, len(entities))
	hidden := make(map[string]bool)
	out := make([]introspection.EntityMeta, 0, len(entities))
	for _, e := range entities {
		if !e.Embeddable && !TableAllowed(e.Table, p.cfg) {
			hidden[e.Key()] = true
			continue
		}
		tables[e.Key()] = e.Table
		out = append(out, e)
	}

	p.mu.Lock()
	p.tables, p.hidden, p.loaded = tables, hidden, true
	p.mu.Unlock()
	return out, nil
}

func (p *Provider) DescribeFields(ctx context.Context, entity string) ([]introspection.FieldMeta, error) {
	table, err := p.tableOf(ctx, entity)
	if err != nil {
		return nil, err
	}
	fields, err := p.inner.DescribeFields(ctx, entity)
	if err != nil {
		return nil, err
	}
	out := fields[:0:0]
	for _, f := range fields {
		if f.Identifier || f.Embedded != "" || ColumnAllowed(table, f.Column, p.cfg) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (p *Provider) DescribeRelations(ctx context.Context, entity string) ([]introspection.RelationMeta, error) {
	table, err := p.tableOf(ctx, entity)
	if err != nil {
		return nil, err
	}
	relations, err := p.inner.DescribeRelations(ctx, entity)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	hidden := p.hidden
	p.mu.Unlock()

	out := relations[:0:0]
	for _, r := range relations {
		if hidden[r.Target] {
			continue
		}
		if r.Junction != nil && !TableAllowed(r.Junction.Table, p.cfg) {
			continue
		}
		if !joinColumnsAllowed(table, r.JoinColumns, p.cfg) {
			continue
		}
		if r.MappedBy != "" {
			ok, err := p.ownerAllowed(ctx, r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// ownerAllowed reports whether the owning side of a mapped-by association
// survives the filters of its own table.
func (p *Provider) ownerAllowed(ctx context.Context, inverse introspection.RelationMeta) (bool, error) {
	targetTable, err := p.tableOf(ctx, inverse.Target)
	if err != nil {
		return false, err
	}
	owners, err := p.inner.DescribeRelations(ctx, inverse.Target)
	if err != nil {
		return false, err
	}
	for _, owner := range owners {
		if owner.Name != inverse.MappedBy {
			continue
		}
		if owner.Junction != nil && !TableAllowed(owner.Junction.Table, p.cfg) {
			return false, nil
		}
		return joinColumnsAllowed(targetTable, owner.JoinColumns, p.cfg), nil
	}
	return true, nil
}

// tableOf returns the table of entity, listing entities first if needed.
func (p *Provider) tableOf(ctx context.Context, entity string) (string, error) {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		if _, err := p.ListEntities(ctx); err != nil {
			return "", err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tables[entity], nil
}

func joinColumnsAllowed(table string, columns []introspection.JoinColumn, cfg Config) bool {
	for _, c := range columns {
		if !ColumnAllowed(table, c.Local, cfg) {
			return false
		}
	}
	return true
}

// TableAllowed reports whether table passes the table filters.
func TableAllowed(table string, cfg Config) bool {
	if matchesAny(table, cfg.DenyTables) {
		return false
	}
	return len(cfg.AllowTables) == 0 || matchesAny(table, cfg.AllowTables)
}

// ColumnAllowed reports whether column of table passes the column filters.
func ColumnAllowed(table, column string, cfg Config) bool {
	if matchesAny(column, mergePatterns(cfg.DenyColumns, table)) {
		return false
	}
	allow := mergePatterns(cfg.AllowColumns, table)
	return len(allow) == 0 || matchesAny(column, allow)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	slices.Sort(combined)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(pattern), value); err == nil && ok {
			return true
		}
	}
	return false
}
