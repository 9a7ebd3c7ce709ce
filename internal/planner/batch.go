package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entitygraph/internal/introspection"
	"entitygraph/internal/schema"
	"entitygraph/internal/sqlutil"
)

// BatchChunkSize caps the parent keys bound into one batch statement.
const BatchChunkSize = 1000

// BatchParentAlias is the column alias used to return parent keys in batch queries.
const BatchParentAlias = "__batch_parent_id"

const batchParentAliasPrefix = "__batch_parent_"

// ParentTuple represents an ordered composite parent key used in batch plans.
type ParentTuple struct {
	Values []interface{}
}

// BatchParentAliases returns the extra scan aliases emitted by batch SQL.
func BatchParentAliases(columnCount int) []string {
	if columnCount <= 1 {
		return []string{BatchParentAlias}
	}
	aliases := make([]string, columnCount)
	for i := 0; i < columnCount; i++ {
		aliases[i] = batchParentAliasPrefix + fmt.Sprint(i)
	}
	return aliases
}

// BatchPlan loads a selected to-many association for many parents in one
// statement. Batch rows carry Scope.Columns followed by the parent key
// columns.
type BatchPlan struct {
	Field *introspection.FieldDescriptor
	Scope *ScopePlan
	Page  *PageSpec

	columns   []string
	aliases   []string
	from      string
	fromArgs  []any
	partition []string
	where     string
	whereArgs []any
	orderExpr []string
	orderBy   []string
}

// ParentWidth is the number of parent key columns appended to batch rows.
func (b *BatchPlan) ParentWidth() int { return len(b.partition) }

// batch compiles the child statement of a to-many selection.
func (c *compiler) batch(f *introspection.FieldDescriptor, node *SelectionNode, narrow []narrowing, path []string) (*BatchPlan, error) {
	child := c.newScope(f.Target)
	var partition []string
	if f.Junction != nil {
		junction := c.nextAlias(f.Junction.Table)
		child.leading = append(child.leading, fmt.Sprintf("INNER JOIN %s ON %s",
			sqlutil.TableAs(f.Junction.Table, junction),
			joinPairs(junction, localColumns(f.Junction.Target), child.alias, remoteColumns(f.Junction.Target))))
		for _, col := range remoteColumns(f.Junction.Source) {
			partition = append(partition, sqlutil.QualifiedColumn(junction, col))
		}
	} else {
		for _, col := range remoteColumns(f.JoinColumns) {
			partition = append(partition, sqlutil.QualifiedColumn(child.alias, col))
		}
	}

	pred, err := child.compileWhere(node.Where, f.Target, child.alias, "", true, appendPath(path, schema.ArgWhere))
	if err != nil {
		return nil, err
	}
	child.addPred(pred)
	for _, n := range narrow {
		pred, err := child.compileWhere(n.where, f.Target, child.alias, "", true, n.path)
		if err != nil {
			return nil, err
		}
		child.addPred(pred)
	}

	for i, spec := range node.OrderBy {
		ref, ok := schema.LookupFieldRef(f.Target, spec.Field)
		orderPath := appendPath(path, schema.ArgOrderBy, fmt.Sprint(i))
		if !ok {
			return nil, validationErr(orderPath, "unknown order field %q", spec.Field)
		}
		if !ref.Field.Orderable {
			return nil, validationErr(orderPath, "field %s is not orderable", spec.Field)
		}
		child.addOrder(child.project(sqlutil.QualifiedColumn(child.alias, ref.Field.Column)), spec.Direction)
	}

	outputs, err := c.selection(child, f.Target.Visible, child.alias, "", node.Children, path)
	if err != nil {
		return nil, err
	}
	key := child.projectIdentifiers(f.Target, child.alias)
	child.tieBreak(key)

	from, fromArgs, err := child.fromSQL()
	if err != nil {
		return nil, err
	}
	where, whereArgs, err := child.predicate()
	if err != nil {
		return nil, err
	}
	return &BatchPlan{
		Field: f,
		Scope: &ScopePlan{
			Columns: child.columnAliases(),
			Key:     key,
			Outputs: outputs,
			Batches: child.batches,
		},
		Page:      node.Page,
		columns:   child.selectList(),
		aliases:   child.columnAliases(),
		from:      from,
		fromArgs:  fromArgs,
		partition: partition,
		where:     where,
		whereArgs: whereArgs,
		orderExpr: child.orderByExprs(),
		orderBy:   child.orderByAliases(),
	}, nil
}

// SQL renders the batch for one chunk of parent keys. A paged batch numbers
// rows per parent with ROW_NUMBER() and keeps one page of each partition.
// An empty query means no rows can match.
func (b *BatchPlan) SQL(parents []ParentTuple) (SQLQuery, error) {
	if len(parents) == 0 {
		return SQLQuery{}, nil
	}
	paged := b.Page != nil && b.Page.Limited
	if paged && b.Page.Limit == 0 {
		return SQLQuery{}, nil
	}
	parentWhere, parentArgs, err := buildTupleInCondition(b.partition, parents)
	if err != nil {
		return SQLQuery{}, err
	}
	if parentWhere == "" {
		return SQLQuery{}, nil
	}

	parentAliases := BatchParentAliases(len(b.partition))
	innerParentCols := make([]string, len(b.partition))
	for i := range b.partition {
		innerParentCols[i] = fmt.Sprintf("%s AS %s", b.partition[i], parentAliases[i])
	}
	whereSQL := parentWhere
	if b.where != "" {
		whereSQL += " AND " + b.where
	}
	args := append([]interface{}{}, b.fromArgs...)
	args = append(args, parentArgs...)
	args = append(args, b.whereArgs...)

	innerSelect := strings.Join(append(append([]string{}, b.columns...), innerParentCols...), ", ")
	parentList := strings.Join(parentAliases, ", ")

	if !paged {
		orderBy := append([]string{parentList}, b.orderBy...)
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
			innerSelect, b.from, whereSQL, strings.Join(orderBy, ", "))
		return SQLQuery{SQL: query, Args: args}, nil
	}

	offset := b.Page.Offset()
	outerSelect := strings.Join(append(append([]string{}, b.aliases...), parentAliases...), ", ")
	query := fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS __rn FROM %s WHERE %s) AS __batch WHERE __rn > ? AND __rn <= ? ORDER BY %s, __rn",
		outerSelect,
		innerSelect,
		strings.Join(b.partition, ", "),
		strings.Join(b.orderExpr, ", "),
		b.from,
		whereSQL,
		parentList,
	)
	args = append(args, offset, offset+b.Page.Limit)
	return SQLQuery{SQL: query, Args: args}, nil
}

// ChunkParents splits parent keys into groups of at most size.
func ChunkParents(parents []ParentTuple, size int) [][]ParentTuple {
	if size <= 0 {
		size = BatchChunkSize
	}
	var chunks [][]ParentTuple
	for start := 0; start < len(parents); start += size {
		end := start + size
		if end > len(parents) {
			end = len(parents)
		}
		chunks = append(chunks, parents[start:end])
	}
	return chunks
}

func buildTupleInCondition(quotedColumns []string, tuples []ParentTuple) (string, []interface{}, error) {
	if len(tuples) == 0 {
		return "", nil, nil
	}
	width := len(quotedColumns)
	if width == 0 {
		return "", nil, fmt.Errorf("tuple IN requires at least one column")
	}

	if width == 1 {
		placeholders := sq.Placeholders(len(tuples))
		args := make([]interface{}, 0, len(tuples))
		for _, tuple := range tuples {
			if len(tuple.Values) != 1 {
				return "", nil, fmt.Errorf("tuple width mismatch: expected 1 value")
			}
			args = append(args, tuple.Values[0])
		}
		return fmt.Sprintf("%s IN (%s)", quotedColumns[0], placeholders), args, nil
	}

	args := make([]interface{}, 0, len(tuples)*width)
	rowPlaceholders := make([]string, 0, len(tuples))
	valuePlaceholders := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	for _, tuple := range tuples {
		if len(tuple.Values) != width {
			return "", nil, fmt.Errorf("tuple width mismatch: expected %d values", width)
		}
		rowPlaceholders = append(rowPlaceholders, valuePlaceholders)
		args = append(args, tuple.Values...)
	}

	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quotedColumns, ", "), strings.Join(rowPlaceholders, ", ")), args, nil
}

// KeyOf renders key values as a map key. Driver byte slices compare by
// content and integers compare across widths.
func KeyOf(values ...any) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(0)
		}
		switch val := v.(type) {
		case nil:
			b.WriteString("\x01null")
		case []byte:
			b.Write(val)
		case int:
			fmt.Fprintf(&b, "%d", val)
		case int32:
			fmt.Fprintf(&b, "%d", val)
		case int64:
			fmt.Fprintf(&b, "%d", val)
		case uint64:
			fmt.Fprintf(&b, "%d", val)
		default:
			fmt.Fprintf(&b, "%v", val)
		}
	}
	return b.String()
}
