package planner

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entitygraph/internal/introspection"
	"entitygraph/internal/scalars"
	"entitygraph/internal/sqltype"
	"entitygraph/internal/sqlutil"
)

// compileWhere lowers a where tree against entity rows aliased as alias.
// A nil condition means the tree matches every row. In conjunctive position
// to-one filters become inner joins on the scope; everywhere else
// associations become correlated EXISTS subqueries so NOT and OR keep their
// meaning for rows without a related row. A conjunctive filter on a to-many
// association also narrows a selection of that association; an explicit
// EXISTS only filters the parents.
func (s *scope) compileWhere(node *WhereNode, entity *introspection.EntityDescriptor, alias, prefix string, conjunctive bool, path []string) (sq.Sqlizer, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case NodeLeaf:
		f, err := resolveScalar(entity, node.Path, path)
		if err != nil {
			return nil, err
		}
		return s.c.leaf(f, sqlutil.QualifiedColumn(alias, f.Column), node, appendPath(path, node.Path...))

	case NodeAnd:
		var parts sq.And
		for _, child := range node.Children {
			pred, err := s.compileWhere(child, entity, alias, prefix, conjunctive, path)
			if err != nil {
				return nil, err
			}
			if pred != nil {
				parts = append(parts, pred)
			}
		}
		switch len(parts) {
		case 0:
			return nil, nil
		case 1:
			return parts[0], nil
		}
		return parts, nil

	case NodeOr:
		if len(node.Children) == 0 {
			return sq.Expr("1=0"), nil
		}
		var parts sq.Or
		matchesAll := false
		for _, child := range node.Children {
			pred, err := s.compileWhere(child, entity, alias, prefix, false, path)
			if err != nil {
				return nil, err
			}
			if pred == nil {
				matchesAll = true
				continue
			}
			parts = append(parts, pred)
		}
		if matchesAll {
			return nil, nil
		}
		return parts, nil

	case NodeNot:
		if len(node.Children) == 0 {
			return nil, nil
		}
		pred, err := s.compileWhere(node.Children[0], entity, alias, prefix, false, path)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			return sq.Expr("1=0"), nil
		}
		return negate(pred)

	case NodeExists, NodeNotExists, NodeAssociation:
		f, err := resolveAssociation(entity, node.Path, path)
		if err != nil {
			return nil, err
		}
		var nested *WhereNode
		if len(node.Children) > 0 {
			nested = node.Children[0]
		}
		joinPath := joinKey(prefix, f.Name)
		nestedPath := appendPath(path, f.Name)
		if node.Kind == NodeAssociation && f.Kind == introspection.KindToOne && conjunctive {
			j := s.join(joinPath, alias, f, JoinInner, nil)
			return s.compileWhere(nested, f.Target, j.Alias, joinPath, true, nestedPath)
		}
		s.noteExists(joinPath, f)
		if node.Kind == NodeAssociation && f.Kind == introspection.KindToMany && conjunctive {
			s.noteNarrowing(joinPath, nested, nestedPath)
		}
		return s.c.exists(alias, f, nested, node.Kind == NodeNotExists, nestedPath)
	}
	return nil, fmt.Errorf("unsupported where node kind %d", node.Kind)
}

// exists renders a correlated [NOT] EXISTS subquery for an association of
// the row aliased as outer. The subquery has its own scope, so to-one
// filters inside it join there.
func (c *compiler) exists(outer string, f *introspection.FieldDescriptor, nested *WhereNode, negated bool, path []string) (sq.Sqlizer, error) {
	sub := c.newScope(f.Target)
	sub.addPred(sq.Expr(c.correlate(sub, outer, f)))
	pred, err := sub.compileWhere(nested, f.Target, sub.alias, "", true, path)
	if err != nil {
		return nil, err
	}
	sub.addPred(pred)
	builder, err := sub.apply(sq.Select("1"))
	if err != nil {
		return nil, err
	}
	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	keyword := "EXISTS"
	if negated {
		keyword = "NOT EXISTS"
	}
	return sq.Expr(fmt.Sprintf("%s (%s)", keyword, sql), args...), nil
}

// correlate links a scope over the association target to the owning row and
// returns the correlation condition. Junction associations gain a leading
// join to the junction table.
func (c *compiler) correlate(target *scope, outer string, f *introspection.FieldDescriptor) string {
	if f.Junction == nil {
		return joinPairs(target.alias, remoteColumns(f.JoinColumns), outer, localColumns(f.JoinColumns))
	}
	junction := c.nextAlias(f.Junction.Table)
	target.leading = append(target.leading, fmt.Sprintf("INNER JOIN %s ON %s",
		sqlutil.TableAs(f.Junction.Table, junction),
		joinPairs(junction, localColumns(f.Junction.Target), target.alias, remoteColumns(f.Junction.Target))))
	return joinPairs(junction, remoteColumns(f.Junction.Source), outer, localColumns(f.Junction.Source))
}

func negate(pred sq.Sqlizer) (sq.Sqlizer, error) {
	sql, args, err := pred.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("NOT ("+sql+")", args...), nil
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// resolveScalar walks path through embedded fields to a scalar.
func resolveScalar(entity *introspection.EntityDescriptor, fieldPath, path []string) (*introspection.FieldDescriptor, error) {
	if len(fieldPath) == 0 {
		return nil, validationErr(path, "empty field path")
	}
	f, ok := entity.Visible(fieldPath[0])
	for i := 1; ok && i < len(fieldPath); i++ {
		if f.Kind != introspection.KindEmbedded {
			ok = false
			break
		}
		f, ok = f.Embedded.Field(fieldPath[i])
	}
	if !ok || f.Kind != introspection.KindScalar {
		return nil, validationErr(appendPath(path, fieldPath...), "unknown filter field %q", strings.Join(fieldPath, "."))
	}
	return f, nil
}

func resolveAssociation(entity *introspection.EntityDescriptor, fieldPath, path []string) (*introspection.FieldDescriptor, error) {
	if len(fieldPath) == 1 {
		if f, ok := entity.Visible(fieldPath[0]); ok && f.IsAssociation() {
			return f, nil
		}
	}
	return nil, validationErr(appendPath(path, fieldPath...), "unknown association %q", strings.Join(fieldPath, "."))
}

// leaf compiles one operator on one column. Every operand is bound through
// the scalar registry; an operand the registry rejects is reported as a
// CoercionError located at the operator.
func (c *compiler) leaf(f *introspection.FieldDescriptor, col string, node *WhereNode, path []string) (sq.Sqlizer, error) {
	op := node.Op
	path = appendPath(path, op.String())
	if !f.Filterable || !op.AppliesTo(f.Scalar) {
		return nil, validationErr(path, "operator %s does not apply to %s field %s", op, f.Scalar, f.Name)
	}
	bind := func(v any) (any, error) {
		out, err := c.sc.Registry.Bind(f.Scalar, v)
		if err != nil {
			var coercion *scalars.CoercionError
			if errors.As(err, &coercion) {
				return nil, coercion.At(path)
			}
			return nil, &ValidationError{Message: err.Error(), Path: path, Value: v}
		}
		return out, nil
	}
	orNull := func(sql string, args ...any) sq.Sqlizer {
		if f.Nullable {
			return sq.Expr(fmt.Sprintf("(%s OR %s IS NULL)", sql, col), args...)
		}
		return sq.Expr(sql, args...)
	}

	switch op {
	case sqltype.EQ:
		if node.Value == nil {
			return sq.Expr(col + " IS NULL"), nil
		}
		v, err := bind(node.Value)
		if err != nil {
			return nil, err
		}
		return sq.Expr(col+" = ?", v), nil

	case sqltype.NE:
		if node.Value == nil {
			return sq.Expr(col + " IS NOT NULL"), nil
		}
		v, err := bind(node.Value)
		if err != nil {
			return nil, err
		}
		return orNull(col+" <> ?", v), nil

	case sqltype.GT, sqltype.GE, sqltype.LT, sqltype.LE:
		if node.Value == nil {
			return nil, validationErr(path, "%s needs a value", op)
		}
		v, err := bind(node.Value)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("%s %s ?", col, comparisonSymbols[op]), v), nil

	case sqltype.BETWEEN, sqltype.NOT_BETWEEN:
		values, _ := node.Value.([]any)
		if len(values) != 2 {
			return nil, &ValidationError{Message: fmt.Sprintf("%s needs exactly two values", op), Path: path, Value: node.Value}
		}
		bounds := make([]any, 2)
		for i, raw := range values {
			if raw == nil {
				return nil, validationErr(path, "%s bounds must not be null", op)
			}
			v, err := bind(raw)
			if err != nil {
				return nil, err
			}
			bounds[i] = v
		}
		if op == sqltype.BETWEEN {
			return sq.Expr(col+" BETWEEN ? AND ?", bounds...), nil
		}
		return orNull(col+" NOT BETWEEN ? AND ?", bounds...), nil

	case sqltype.IN, sqltype.NIN:
		values, _ := node.Value.([]any)
		bound := make([]any, 0, len(values))
		hasNull := false
		for _, raw := range values {
			if raw == nil {
				hasNull = true
				continue
			}
			v, err := bind(raw)
			if err != nil {
				return nil, err
			}
			bound = append(bound, v)
		}
		if op == sqltype.IN {
			switch {
			case len(bound) == 0 && !hasNull:
				return sq.Expr("1=0"), nil
			case len(bound) == 0:
				return sq.Expr(col + " IS NULL"), nil
			case hasNull:
				return sq.Expr(fmt.Sprintf("(%s IN (%s) OR %s IS NULL)", col, sq.Placeholders(len(bound)), col), bound...), nil
			}
			return sq.Expr(fmt.Sprintf("%s IN (%s)", col, sq.Placeholders(len(bound))), bound...), nil
		}
		switch {
		case len(bound) == 0 && !hasNull:
			return nil, nil
		case len(bound) == 0:
			return sq.Expr(col + " IS NOT NULL"), nil
		case hasNull:
			return sq.Expr(fmt.Sprintf("(%s NOT IN (%s) AND %s IS NOT NULL)", col, sq.Placeholders(len(bound)), col), bound...), nil
		}
		return orNull(fmt.Sprintf("%s NOT IN (%s)", col, sq.Placeholders(len(bound))), bound...), nil

	case sqltype.LIKE, sqltype.LOCATE:
		if node.Value == nil {
			return nil, validationErr(path, "%s needs a value", op)
		}
		v, err := bind(node.Value)
		if err != nil {
			return nil, err
		}
		if op == sqltype.LIKE {
			return sq.Expr(col+" LIKE ?", v), nil
		}
		return sq.Expr(fmt.Sprintf("INSTR(%s, ?) > 0", col), v), nil

	case sqltype.IS_NULL:
		isNull, ok := node.Value.(bool)
		if !ok {
			return nil, &ValidationError{Message: "IS_NULL must be a boolean", Path: path, Value: node.Value}
		}
		if isNull {
			return sq.Expr(col + " IS NULL"), nil
		}
		return sq.Expr(col + " IS NOT NULL"), nil
	}
	return nil, validationErr(path, "unsupported operator %s", op)
}

var comparisonSymbols = map[sqltype.Operator]string{
	sqltype.GT: ">",
	sqltype.GE: ">=",
	sqltype.LT: "<",
	sqltype.LE: "<=",
}
