package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"entitygraph/internal/observability"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InfoSchemaProvider reads entity metadata from a MySQL-compatible
// information_schema. Every table with a primary key becomes an entity.
// Foreign keys become owning to-one associations with inverse to-many
// counterparts, and pure two-key link tables become many-to-many associations.
type InfoSchemaProvider struct {
	db           Queryer
	databaseName string
	logger       *slog.Logger

	mu       sync.Mutex
	snapshot *schemaSnapshot
}

// NewInfoSchemaProvider creates a provider for one database.
func NewInfoSchemaProvider(db Queryer, databaseName string, logger *slog.Logger) *InfoSchemaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &InfoSchemaProvider{db: db, databaseName: databaseName, logger: logger}
}

type columnInfo struct {
	Name     string
	Type     string
	Comment  string
	Nullable bool
}

type tableInfo struct {
	Name    string
	IsView  bool
	Comment string
	Columns []columnInfo
	Primary []string
}

// foreignKey groups the KEY_COLUMN_USAGE rows of one constraint.
type foreignKey struct {
	Table             string
	ConstraintName    string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

type schemaSnapshot struct {
	tables      []*tableInfo
	byName      map[string]*tableInfo
	foreignKeys []foreignKey
	junctions   map[string][2]foreignKey
}

// ListEntities returns one entity per table with a primary key. Pure link
// tables are hidden; they surface as many-to-many associations instead.
func (p *InfoSchemaProvider) ListEntities(ctx context.Context) ([]EntityMeta, error) {
	snap, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []EntityMeta
	for _, t := range snap.tables {
		if _, isJunction := snap.junctions[t.Name]; isJunction {
			continue
		}
		out = append(out, EntityMeta{Table: t.Name, Description: t.Comment})
	}
	return out, nil
}

// DescribeFields returns the columns of a table in ordinal order.
func (p *InfoSchemaProvider) DescribeFields(ctx context.Context, entity string) ([]FieldMeta, error) {
	snap, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	table, ok := snap.byName[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	primary := make(map[string]bool, len(table.Primary))
	for _, col := range table.Primary {
		primary[col] = true
	}
	fields := make([]FieldMeta, 0, len(table.Columns))
	for _, col := range table.Columns {
		fields = append(fields, FieldMeta{
			Column:      col.Name,
			SQLType:     col.Type,
			Nullable:    col.Nullable,
			Identifier:  primary[col.Name],
			Orderable:   true,
			Filterable:  true,
			Description: col.Comment,
		})
	}
	return fields, nil
}

// DescribeRelations derives associations from foreign keys touching the table.
func (p *InfoSchemaProvider) DescribeRelations(ctx context.Context, entity string) ([]RelationMeta, error) {
	snap, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	table, ok := snap.byName[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	var rels []RelationMeta
	for _, fk := range snap.foreignKeys {
		if _, isJunction := snap.junctions[fk.Table]; isJunction {
			continue
		}
		if fk.Table == table.Name {
			rels = append(rels, RelationMeta{
				Target:      fk.ReferencedTable,
				JoinColumns: pairColumns(fk.Columns, fk.ReferencedColumns),
				Optional:    anyNullable(table, fk.Columns),
			})
		}
	}
	for _, fk := range snap.foreignKeys {
		if _, isJunction := snap.junctions[fk.Table]; isJunction {
			continue
		}
		if fk.ReferencedTable == table.Name {
			rels = append(rels, RelationMeta{
				Target:      fk.Table,
				ToMany:      true,
				Inverse:     true,
				JoinColumns: pairColumns(fk.ReferencedColumns, fk.Columns),
				Optional:    true,
			})
		}
	}

	junctionNames := make([]string, 0, len(snap.junctions))
	for name := range snap.junctions {
		junctionNames = append(junctionNames, name)
	}
	sort.Strings(junctionNames)
	for _, name := range junctionNames {
		pair := snap.junctions[name]
		for side, fk := range pair {
			if fk.ReferencedTable != table.Name {
				continue
			}
			other := pair[1-side]
			rels = append(rels, RelationMeta{
				Target:  other.ReferencedTable,
				ToMany:  true,
				Inverse: side == 1,
				Junction: &JunctionMeta{
					Table:  name,
					Source: pairColumns(fk.ReferencedColumns, fk.Columns),
					Target: pairColumns(other.Columns, other.ReferencedColumns),
				},
				Optional: true,
			})
		}
	}
	return rels, nil
}

func pairColumns(local, remote []string) []JoinColumn {
	out := make([]JoinColumn, 0, len(local))
	for i := range local {
		if i >= len(remote) {
			break
		}
		out = append(out, JoinColumn{Local: local[i], Remote: remote[i]})
	}
	return out
}

func anyNullable(table *tableInfo, columns []string) bool {
	for _, name := range columns {
		for _, col := range table.Columns {
			if col.Name == name && col.Nullable {
				return true
			}
		}
	}
	return false
}

// load reads the whole schema once; later calls reuse the snapshot.
func (p *InfoSchemaProvider) load(ctx context.Context) (*schemaSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot != nil {
		return p.snapshot, nil
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.load_schema",
		attribute.String("db.name", p.databaseName),
	)
	defer span.End()

	tables, err := p.getTables(ctx)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	byName := make(map[string]*tableInfo, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	if err := p.getColumns(ctx, byName); err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	if err := p.getPrimaryKeys(ctx, byName); err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}
	fks, err := p.getForeignKeys(ctx)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	snap := &schemaSnapshot{byName: make(map[string]*tableInfo)}
	for _, t := range tables {
		if len(t.Primary) == 0 {
			p.logger.Warn("skipping table without primary key", slog.String("table", t.Name))
			continue
		}
		snap.tables = append(snap.tables, t)
		snap.byName[t.Name] = t
	}
	for _, fk := range fks {
		if snap.byName[fk.Table] == nil || snap.byName[fk.ReferencedTable] == nil {
			continue
		}
		snap.foreignKeys = append(snap.foreignKeys, fk)
	}
	snap.junctions = classifyJunctions(snap)

	span.SetAttributes(attribute.Int("table.count", len(snap.tables)))
	p.snapshot = snap
	return snap, nil
}

// classifyJunctions finds pure link tables: exactly two foreign keys to
// different tables, every column part of one of them, none nullable, and a
// primary key covering all of them.
func classifyJunctions(snap *schemaSnapshot) map[string][2]foreignKey {
	byTable := make(map[string][]foreignKey)
	for _, fk := range snap.foreignKeys {
		byTable[fk.Table] = append(byTable[fk.Table], fk)
	}

	out := make(map[string][2]foreignKey)
	for _, t := range snap.tables {
		fks := byTable[t.Name]
		if t.IsView || len(fks) != 2 || fks[0].ReferencedTable == fks[1].ReferencedTable {
			continue
		}
		fkCols := make(map[string]bool)
		for _, fk := range fks {
			for _, c := range fk.Columns {
				fkCols[c] = true
			}
		}
		pure := len(fkCols) == len(t.Columns)
		for _, col := range t.Columns {
			if !fkCols[col.Name] || col.Nullable {
				pure = false
			}
		}
		primary := make(map[string]bool, len(t.Primary))
		for _, c := range t.Primary {
			primary[c] = true
		}
		for c := range fkCols {
			if !primary[c] {
				pure = false
			}
		}
		if !pure {
			continue
		}
		pair := [2]foreignKey{fks[0], fks[1]}
		if pair[0].ReferencedTable > pair[1].ReferencedTable {
			pair[0], pair[1] = pair[1], pair[0]
		}
		out[t.Name] = pair
	}
	return out
}

func (p *InfoSchemaProvider) getTables(ctx context.Context) ([]*tableInfo, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.get_tables",
		attribute.String("db.name", p.databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`

	rows, err := p.db.QueryContext(ctx, query, p.databaseName)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []*tableInfo
	for rows.Next() {
		var tableName string
		var tableType string
		var tableComment sql.NullString
		if err := rows.Scan(&tableName, &tableType, &tableComment); err != nil {
			observability.RecordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, &tableInfo{
			Name:    tableName,
			IsView:  strings.EqualFold(tableType, "VIEW"),
			Comment: strings.TrimSpace(tableComment.String),
		})
	}

	if err := rows.Err(); err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func (p *InfoSchemaProvider) getColumns(ctx context.Context, tables map[string]*tableInfo) error {
	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.get_columns",
		attribute.String("db.name", p.databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, COLUMN_COMMENT, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION
	`

	rows, err := p.db.QueryContext(ctx, query, p.databaseName)
	if err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tableName string
		var col columnInfo
		var comment sql.NullString
		var isNullable string
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &comment, &isNullable); err != nil {
			observability.RecordSpanError(span, err)
			return err
		}
		col.Comment = strings.TrimSpace(comment.String)
		col.Nullable = strings.EqualFold(isNullable, "YES")
		if t := tables[tableName]; t != nil {
			t.Columns = append(t.Columns, col)
		}
	}

	if err := rows.Err(); err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (p *InfoSchemaProvider) getPrimaryKeys(ctx context.Context, tables map[string]*tableInfo) error {
	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.get_primary_keys",
		attribute.String("db.name", p.databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION
	`

	rows, err := p.db.QueryContext(ctx, query, p.databaseName)
	if err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			observability.RecordSpanError(span, err)
			return err
		}
		if t := tables[tableName]; t != nil {
			t.Primary = append(t.Primary, columnName)
		}
	}

	if err := rows.Err(); err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (p *InfoSchemaProvider) getForeignKeys(ctx context.Context) ([]foreignKey, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "introspection.get_foreign_keys",
		attribute.String("db.name", p.databaseName),
	)
	defer span.End()

	query := `
		SELECT
			TABLE_NAME,
			CONSTRAINT_NAME,
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
	`

	rows, err := p.db.QueryContext(ctx, query, p.databaseName)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []foreignKey
	for rows.Next() {
		var table, constraint, column, refTable, refColumn string
		if err := rows.Scan(&table, &constraint, &column, &refTable, &refColumn); err != nil {
			observability.RecordSpanError(span, err)
			return nil, err
		}
		n := len(out)
		if n > 0 && out[n-1].Table == table && out[n-1].ConstraintName == constraint {
			out[n-1].Columns = append(out[n-1].Columns, column)
			out[n-1].ReferencedColumns = append(out[n-1].ReferencedColumns, refColumn)
			continue
		}
		out = append(out, foreignKey{
			Table:             table,
			ConstraintName:    constraint,
			Columns:           []string{column},
			ReferencedTable:   refTable,
			ReferencedColumns: []string{refColumn},
		})
	}

	if err := rows.Err(); err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	return out, nil
}
