package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entitygraph/internal/introspection"
	"entitygraph/internal/sqlutil"
)

// JoinKind is how an association is reached from its scope.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	// JoinExists associations are evaluated as correlated subqueries.
	JoinExists
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinExists:
		return "EXISTS"
	}
	return fmt.Sprintf("JoinKind(%d)", int(k))
}

// Join is one association reached from a scope. Path is the dotted chain of
// association names from the scope's entity.
type Join struct {
	Path  string
	Field *introspection.FieldDescriptor
	Kind  JoinKind
	Alias string

	parent   string
	junction string
	on       sq.Sqlizer
}

// clauses renders the join, through the junction table when there is one.
func (j *Join) clauses() (string, []any, error) {
	keyword := "LEFT JOIN"
	if j.Kind == JoinInner {
		keyword = "INNER JOIN"
	}
	f := j.Field
	var parts []string
	if f.Junction != nil {
		parts = append(parts, fmt.Sprintf("%s %s ON %s", keyword,
			sqlutil.TableAs(f.Junction.Table, j.junction),
			joinPairs(j.junction, remoteColumns(f.Junction.Source), j.parent, localColumns(f.Junction.Source))))
		parts = append(parts, fmt.Sprintf("%s %s ON %s", keyword,
			sqlutil.TableAs(f.Target.Table, j.Alias),
			joinPairs(j.Alias, remoteColumns(f.Junction.Target), j.junction, localColumns(f.Junction.Target))))
	} else {
		parts = append(parts, fmt.Sprintf("%s %s ON %s", keyword,
			sqlutil.TableAs(f.Target.Table, j.Alias),
			joinPairs(j.Alias, remoteColumns(f.JoinColumns), j.parent, localColumns(f.JoinColumns))))
	}
	sql := strings.Join(parts, " ")
	if j.on == nil {
		return sql, nil, nil
	}
	onSQL, onArgs, err := j.on.ToSql()
	if err != nil {
		return "", nil, err
	}
	return sql + " AND " + onSQL, onArgs, nil
}

// scope is one FROM clause under construction: a base table, its joins, its
// predicates and its projected columns.
type scope struct {
	c       *compiler
	entity  *introspection.EntityDescriptor
	alias   string
	leading []string
	joins   []*Join
	byPath  map[string]*Join
	exists  []*Join
	preds   []sq.Sqlizer

	exprs []string
	index map[string]int
	order []orderTerm

	batches   []*BatchPlan
	hasToMany bool

	// narrow holds the conjunctive where filters on to-many paths. A
	// selection of the same path loads only children matching them.
	narrow map[string][]narrowing
}

type narrowing struct {
	where *WhereNode
	path  []string
}

type orderTerm struct {
	column    int
	direction Direction
}

func (c *compiler) newScope(entity *introspection.EntityDescriptor) *scope {
	return &scope{
		c:      c,
		entity: entity,
		alias:  c.nextAlias(entity.Table),
		byPath: map[string]*Join{},
		index:  map[string]int{},
	}
}

// join returns the join for path, creating it when needed. A path requested
// both as inner and outer join stays inner.
func (s *scope) join(path, parentAlias string, f *introspection.FieldDescriptor, kind JoinKind, on sq.Sqlizer) *Join {
	if j, ok := s.byPath[path]; ok {
		if kind == JoinInner && j.Kind == JoinLeft {
			j.Kind = JoinInner
		}
		return j
	}
	j := &Join{Path: path, Field: f, Kind: kind, Alias: s.c.nextAlias(f.Target.Table), parent: parentAlias, on: on}
	if f.Junction != nil {
		j.junction = s.c.nextAlias(f.Junction.Table)
	}
	s.byPath[path] = j
	s.joins = append(s.joins, j)
	return j
}

func (s *scope) noteExists(path string, f *introspection.FieldDescriptor) {
	s.exists = append(s.exists, &Join{Path: path, Field: f, Kind: JoinExists})
}

func (s *scope) noteNarrowing(path string, where *WhereNode, wherePath []string) {
	if where == nil {
		return
	}
	if s.narrow == nil {
		s.narrow = map[string][]narrowing{}
	}
	s.narrow[path] = append(s.narrow[path], narrowing{where: where, path: wherePath})
}

// snapshot returns copies of the joins recorded so far, exists entries last.
func (s *scope) snapshot() []Join {
	out := make([]Join, 0, len(s.joins)+len(s.exists))
	for _, j := range s.joins {
		out = append(out, *j)
	}
	for _, j := range s.exists {
		out = append(out, *j)
	}
	return out
}

func (s *scope) addPred(pred sq.Sqlizer) {
	if pred != nil {
		s.preds = append(s.preds, pred)
	}
}

// project adds expr to the select list once and returns its column index.
func (s *scope) project(expr string) int {
	if i, ok := s.index[expr]; ok {
		return i
	}
	i := len(s.exprs)
	s.exprs = append(s.exprs, expr)
	s.index[expr] = i
	return i
}

func (s *scope) projectIdentifiers(entity *introspection.EntityDescriptor, alias string) []int {
	out := make([]int, len(entity.Identifiers))
	for i, id := range entity.Identifiers {
		out[i] = s.project(sqlutil.QualifiedColumn(alias, id.Column))
	}
	return out
}

func (s *scope) addOrder(column int, direction Direction) {
	for _, term := range s.order {
		if term.column == column {
			return
		}
	}
	s.order = append(s.order, orderTerm{column: column, direction: direction})
}

// tieBreak orders by the identifier columns not already ordered on.
func (s *scope) tieBreak(key []int) {
	for _, column := range key {
		s.addOrder(column, Asc)
	}
}

func columnAlias(i int) string { return fmt.Sprintf("__c%d", i) }

func (s *scope) columnAliases() []string {
	out := make([]string, len(s.exprs))
	for i := range s.exprs {
		out[i] = columnAlias(i)
	}
	return out
}

func (s *scope) selectList() []string {
	out := make([]string, len(s.exprs))
	for i, expr := range s.exprs {
		out[i] = fmt.Sprintf("%s AS %s", expr, columnAlias(i))
	}
	return out
}

// orderByAliases renders the order on projected aliases.
func (s *scope) orderByAliases() []string {
	out := make([]string, len(s.order))
	for i, term := range s.order {
		out[i] = fmt.Sprintf("%s %s", columnAlias(term.column), term.direction)
	}
	return out
}

// orderByExprs renders the order on the underlying expressions.
func (s *scope) orderByExprs() []string {
	out := make([]string, len(s.order))
	for i, term := range s.order {
		out[i] = fmt.Sprintf("%s %s", s.exprs[term.column], term.direction)
	}
	return out
}

// apply adds FROM, joins and predicates to builder.
func (s *scope) apply(builder sq.SelectBuilder) (sq.SelectBuilder, error) {
	builder = builder.From(sqlutil.TableAs(s.entity.Table, s.alias))
	for _, clause := range s.leading {
		builder = builder.JoinClause(clause)
	}
	for _, j := range s.joins {
		sql, args, err := j.clauses()
		if err != nil {
			return builder, err
		}
		builder = builder.JoinClause(sql, args...)
	}
	if len(s.preds) > 0 {
		builder = builder.Where(sq.And(s.preds))
	}
	return builder, nil
}

// fromSQL renders FROM and joins as text for hand-built statements.
func (s *scope) fromSQL() (string, []any, error) {
	parts := []string{sqlutil.TableAs(s.entity.Table, s.alias)}
	parts = append(parts, s.leading...)
	var args []any
	for _, j := range s.joins {
		sql, joinArgs, err := j.clauses()
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, joinArgs...)
	}
	return strings.Join(parts, " "), args, nil
}

// predicate renders the scope predicates as one condition.
func (s *scope) predicate() (string, []any, error) {
	if len(s.preds) == 0 {
		return "", nil, nil
	}
	return sq.And(s.preds).ToSql()
}

func joinPairs(leftAlias string, leftCols []string, rightAlias string, rightCols []string) string {
	pairs := make([]string, len(leftCols))
	for i := range leftCols {
		pairs[i] = fmt.Sprintf("%s = %s",
			sqlutil.QualifiedColumn(leftAlias, leftCols[i]),
			sqlutil.QualifiedColumn(rightAlias, rightCols[i]))
	}
	return strings.Join(pairs, " AND ")
}

func localColumns(cols []introspection.JoinColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Local
	}
	return out
}

func remoteColumns(cols []introspection.JoinColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Remote
	}
	return out
}
