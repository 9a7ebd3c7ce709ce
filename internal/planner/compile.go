package planner

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"entitygraph/internal/introspection"
	"entitygraph/internal/observability"
	"entitygraph/internal/schema"
	"entitygraph/internal/sqltype"
	"entitygraph/internal/sqlutil"
)

const tracerName = "entitygraph/planner"

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Empty reports whether no statement was planned.
func (q SQLQuery) Empty() bool { return q.SQL == "" }

// QueryPlan is the compiled form of one Request. Plans are immutable and may
// be shared between requests through a PlanCache.
type QueryPlan struct {
	Entity *introspection.EntityDescriptor
	Single bool

	// Root holds the top-level statement and the shape of its rows. Its
	// Query is empty when nothing was selected.
	Root *ScopePlan
	// Total counts the distinct top-level rows, ignoring the page.
	Total  *SQLQuery
	Totals []string
	Pages  []string
	// Page is the effective top-level page after defaults.
	Page     PageSpec
	Distinct bool
	// Joins lists the associations of the top-level statement.
	Joins []Join
	Slots []*SlotPlan
	Cost  PlanCost
}

// PageCount returns the number of pages for total rows.
func (p *QueryPlan) PageCount(total int64) int64 {
	if !p.Page.Limited {
		if total > 0 {
			return 1
		}
		return 0
	}
	if p.Page.Limit == 0 {
		return 0
	}
	limit := int64(p.Page.Limit)
	return (total + limit - 1) / limit
}

// ScopePlan is one statement's projection and the shape built from its rows.
type ScopePlan struct {
	Query SQLQuery
	// Columns are the projected aliases in scan order.
	Columns []string
	// Key holds the column indexes of the scope entity's identifiers. Rows
	// with equal keys describe the same entity.
	Key     []int
	Outputs []*OutputNode
	Batches []*BatchPlan
}

// OutputKind tags the variant of an OutputNode.
type OutputKind int

const (
	OutputScalar OutputKind = iota
	OutputEmbedded
	OutputToOne
	OutputToMany
	// OutputRoot is a select alias; its children describe the entity.
	OutputRoot
)

// OutputNode maps projected columns to one response key.
type OutputNode struct {
	Key  string
	Kind OutputKind

	// OutputScalar.
	Scalar sqltype.Kind
	Column int

	// OutputToOne: identifier columns of the joined row. All null means no
	// related row.
	Presence []int

	// OutputToMany: the batch providing children, and the columns holding
	// this row's side of the correlation.
	Batch     *BatchPlan
	ParentKey []int

	Children []*OutputNode
}

// Option customizes compilation.
type Option func(*compileOptions)

type compileOptions struct {
	limits           *PlanLimits
	cache            *PlanCache
	defaultListLimit int
}

// WithLimits enforces planner cost limits for a query.
func WithLimits(limits PlanLimits) Option {
	return func(o *compileOptions) {
		o.limits = &limits
	}
}

// WithCache reuses plans compiled for equal requests.
func WithCache(cache *PlanCache) Option {
	return func(o *compileOptions) {
		o.cache = cache
	}
}

// WithDefaultListLimit overrides the row estimate used for unbounded lists.
func WithDefaultListLimit(limit int) Option {
	return func(o *compileOptions) {
		o.defaultListLimit = limit
	}
}

type compiler struct {
	sc      *schema.Context
	aliases int
}

func (c *compiler) nextAlias(table string) string {
	normalized := strings.NewReplacer("`", "", ".", "_", " ", "_").Replace(table)
	if normalized == "" {
		normalized = "rel"
	}
	alias := fmt.Sprintf("__%s_%d", normalized, c.aliases)
	c.aliases++
	return alias
}

// Compile turns a request into SQL statements and a result shape. Invalid
// where, page and order arguments fail the whole request; malformed
// aggregate groups fail only their own slot.
func Compile(ctx context.Context, sc *schema.Context, req *Request, opts ...Option) (*QueryPlan, error) {
	o := compileOptions{defaultListLimit: DefaultListLimit}
	for _, opt := range opts {
		opt(&o)
	}
	_, span := observability.StartSpan(ctx, tracerName, "planner.compile",
		attribute.String("entity", req.Entity.Name),
		attribute.Bool("single", req.Single),
	)
	defer span.End()

	var key uint64
	if o.cache != nil {
		key = Fingerprint(req, sc.Options)
		if plan, ok := o.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return plan, nil
		}
	}

	cost := EstimateCost(req, sc.Options.DefaultLimit, o.defaultListLimit)
	if o.limits != nil {
		if err := validateLimits(cost, *o.limits); err != nil {
			observability.RecordSpanError(span, err)
			return nil, err
		}
	}

	c := &compiler{sc: sc}
	plan, err := c.compile(req)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	plan.Cost = cost
	span.SetAttributes(
		attribute.Int("slots", len(plan.Slots)),
		attribute.Int("joins", len(plan.Joins)),
	)
	if o.cache != nil {
		o.cache.Set(key, plan)
	}
	return plan, nil
}

func (c *compiler) compile(req *Request) (*QueryPlan, error) {
	entity := req.Entity
	if len(entity.Identifiers) == 0 {
		return nil, fmt.Errorf("entity %s has no identifier", entity.Name)
	}
	plan := &QueryPlan{
		Entity: entity,
		Single: req.Single,
		Totals: req.Totals,
		Pages:  req.Pages,
	}

	root := c.newScope(entity)
	where, err := root.compileWhere(req.Where, entity, root.alias, "", true, []string{schema.ArgWhere})
	if err != nil {
		return nil, err
	}
	root.addPred(where)

	for i, spec := range req.OrderBy {
		ref, ok := schema.LookupFieldRef(entity, spec.Field)
		if !ok {
			return nil, validationErr([]string{schema.ArgOrderBy, fmt.Sprint(i)}, "unknown order field %q", spec.Field)
		}
		if !ref.Field.Orderable {
			return nil, validationErr([]string{schema.ArgOrderBy, fmt.Sprint(i)}, "field %s is not orderable", spec.Field)
		}
		root.addOrder(root.project(sqlutil.QualifiedColumn(root.alias, ref.Field.Column)), spec.Direction)
	}

	var outputs []*OutputNode
	for _, sel := range req.Select {
		children, err := c.selection(root, entity.Visible, root.alias, "", sel.Children, []string{sel.Key()})
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, &OutputNode{Key: sel.Alias, Kind: OutputRoot, Children: children})
	}
	key := root.projectIdentifiers(entity, root.alias)
	root.tieBreak(key)

	plan.Page = c.effectivePage(req)
	plan.Distinct = root.hasToMany && c.distinct(req)
	plan.Joins = root.snapshot()
	plan.Root = &ScopePlan{
		Columns: root.columnAliases(),
		Key:     key,
		Outputs: outputs,
		Batches: root.batches,
	}

	if len(req.Select) > 0 {
		builder := sq.Select(root.selectList()...)
		if plan.Distinct {
			builder = builder.Distinct()
		}
		if builder, err = root.apply(builder); err != nil {
			return nil, err
		}
		builder = builder.OrderBy(root.orderByAliases()...)
		if plan.Page.Limited {
			builder = builder.Limit(uint64(plan.Page.Limit))
			if offset := plan.Page.Offset(); offset > 0 {
				builder = builder.Offset(uint64(offset))
			}
		}
		sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
		if err != nil {
			return nil, err
		}
		plan.Root.Query = SQLQuery{SQL: sql, Args: args}
	}

	if req.WantsCount() && !req.Single {
		total, err := countRows(root, entity)
		if err != nil {
			return nil, err
		}
		plan.Total = &total
	}

	if !req.Single {
		plan.Slots = c.slots(req)
	}
	return plan, nil
}

// countRows counts the distinct top-level rows of a scope.
func countRows(s *scope, entity *introspection.EntityDescriptor) (SQLQuery, error) {
	ids := make([]string, len(entity.Identifiers))
	for i, id := range entity.Identifiers {
		ids[i] = fmt.Sprintf("%s AS __k%d", sqlutil.QualifiedColumn(s.alias, id.Column), i)
	}
	inner, err := s.apply(sq.Select(ids...).Distinct())
	if err != nil {
		return SQLQuery{}, err
	}
	sql, args, err := sq.Select("COUNT(*)").FromSelect(inner, "__total").PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

func (c *compiler) effectivePage(req *Request) PageSpec {
	if req.Single {
		return PageSpec{Start: 1}
	}
	if req.Page != nil && req.Page.Limited {
		return *req.Page
	}
	page := PageSpec{Start: 1}
	if req.Page != nil {
		page.Start = req.Page.Start
	}
	if limit := c.sc.Options.DefaultLimit; limit > 0 {
		page.Limit = limit
		page.Limited = true
	} else {
		page.Start = 1
	}
	return page
}

func (c *compiler) distinct(req *Request) bool {
	if c.sc.Options.UseDistinctParameter && req.Distinct != nil {
		return *req.Distinct
	}
	return c.sc.Options.DefaultDistinct
}

// selection compiles requested fields of rows aliased as alias into s.
func (c *compiler) selection(s *scope, lookup fieldLookup, alias, prefix string, nodes []*SelectionNode, path []string) ([]*OutputNode, error) {
	out := make([]*OutputNode, 0, len(nodes))
	for _, node := range nodes {
		nodePath := appendPath(path, node.Key())
		f, ok := lookup(node.Field)
		if !ok {
			return nil, validationErr(nodePath, "unknown field %q", node.Field)
		}
		var (
			output *OutputNode
			err    error
		)
		switch f.Kind {
		case introspection.KindScalar:
			column := s.project(sqlutil.QualifiedColumn(alias, f.Column))
			if node.Order != nil {
				if !f.Orderable {
					return nil, validationErr(nodePath, "field %s is not orderable", f.Name)
				}
				s.addOrder(column, *node.Order)
			}
			output = &OutputNode{Key: node.Key(), Kind: OutputScalar, Scalar: f.Scalar, Column: column}
		case introspection.KindEmbedded:
			output = &OutputNode{Key: node.Key(), Kind: OutputEmbedded}
			output.Children, err = c.selection(s, f.Embedded.Field, alias, prefix, node.Children, nodePath)
		case introspection.KindToOne:
			output, err = c.toOne(s, f, alias, prefix, node, nodePath)
		case introspection.KindToMany:
			output, err = c.toMany(s, f, alias, s.narrow[joinKey(prefix, f.Name)], node, nodePath)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, output)
	}
	return out, nil
}

// toOne joins a selected to-one association. Without a filter the join
// follows the association's optionality and is shared with where filters on
// the same path. A filtered selection gets a join of its own: inner by
// default, or outer with the filter in its ON clause when optional.
func (c *compiler) toOne(s *scope, f *introspection.FieldDescriptor, alias, prefix string, node *SelectionNode, path []string) (*OutputNode, error) {
	optional := f.Optional
	if node.Where != nil {
		optional = false
	}
	if node.Optional != nil {
		optional = *node.Optional
	}
	joinPath := joinKey(prefix, f.Name)
	if node.Where != nil {
		joinPath = fmt.Sprintf("%s@%s", joinPath, node.Key())
	}

	var j *Join
	switch {
	case node.Where != nil && optional:
		j = s.join(joinPath, alias, f, JoinLeft, nil)
		on, err := s.compileWhere(node.Where, f.Target, j.Alias, joinPath, false, appendPath(path, schema.ArgWhere))
		if err != nil {
			return nil, err
		}
		j.on = on
	case node.Where != nil:
		j = s.join(joinPath, alias, f, JoinInner, nil)
		pred, err := s.compileWhere(node.Where, f.Target, j.Alias, joinPath, true, appendPath(path, schema.ArgWhere))
		if err != nil {
			return nil, err
		}
		s.addPred(pred)
	default:
		kind := JoinLeft
		if !optional {
			kind = JoinInner
		}
		j = s.join(joinPath, alias, f, kind, nil)
	}

	children, err := c.selection(s, f.Target.Visible, j.Alias, joinPath, node.Children, path)
	if err != nil {
		return nil, err
	}
	return &OutputNode{
		Key:      node.Key(),
		Kind:     OutputToOne,
		Presence: s.projectIdentifiers(f.Target, j.Alias),
		Children: children,
	}, nil
}

// toMany plans a selected to-many association as a batch keyed by the
// parent's correlation columns. A non-optional association also restricts
// the parent rows to those with at least one matching child. Filters in
// narrow come from the enclosing where and apply to the children as well.
func (c *compiler) toMany(s *scope, f *introspection.FieldDescriptor, alias string, narrow []narrowing, node *SelectionNode, path []string) (*OutputNode, error) {
	optional := c.sc.Options.ToManyDefaultOptional
	if node.Where != nil {
		optional = false
	}
	if node.Optional != nil {
		optional = *node.Optional
	}
	if !optional {
		pred, err := c.exists(alias, f, node.Where, false, appendPath(path, schema.ArgWhere))
		if err != nil {
			return nil, err
		}
		s.addPred(pred)
	}

	var local []string
	if f.Junction != nil {
		local = localColumns(f.Junction.Source)
	} else {
		local = localColumns(f.JoinColumns)
	}
	parentKey := make([]int, len(local))
	for i, col := range local {
		parentKey[i] = s.project(sqlutil.QualifiedColumn(alias, col))
	}

	batch, err := c.batch(f, node, narrow, path)
	if err != nil {
		return nil, err
	}
	s.batches = append(s.batches, batch)
	s.hasToMany = true
	return &OutputNode{
		Key:       node.Key(),
		Kind:      OutputToMany,
		Batch:     batch,
		ParentKey: parentKey,
	}, nil
}
