package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"entitygraph/internal/introspection"
	"entitygraph/internal/schema"
	"entitygraph/internal/sqltype"
	"entitygraph/internal/sqlutil"
)

// SlotKind tags the variant of a SlotPlan.
type SlotKind int

const (
	SlotCount SlotKind = iota
	SlotGroup
)

// SlotPlan is one independent aggregate statement. Slots share the request's
// where filter and nothing else, so each can run and fail on its own.
type SlotPlan struct {
	// Aggregate is the response key of the aggregate field. Container is the
	// key of the by field for association groups.
	Aggregate string
	Container string
	Alias     string
	Kind      SlotKind
	Query     SQLQuery
	// Group columns come first in each row, the count last.
	Groups   []GroupColumn
	CountKey string
	// Err is set when the slot was rejected. The slot resolves to null and
	// reports Err; the other slots are unaffected.
	Err error
}

// GroupColumn is one grouping key of a group slot.
type GroupColumn struct {
	Key    string
	Scalar sqltype.Kind
}

func (c *compiler) slots(req *Request) []*SlotPlan {
	var out []*SlotPlan
	for _, agg := range req.Aggregates {
		for _, count := range agg.Counts {
			slot := &SlotPlan{Aggregate: agg.Alias, Alias: count.Alias, Kind: SlotCount, CountKey: count.Alias}
			slot.Query, slot.Err = c.countSlot(req, count, []string{agg.Alias, count.Alias})
			out = append(out, slot)
		}
		for _, group := range agg.Groups {
			slot := &SlotPlan{Aggregate: agg.Alias, Container: group.Container, Alias: group.Alias, Kind: SlotGroup}
			path := []string{agg.Alias}
			if group.Container != "" {
				path = append(path, group.Container)
			}
			path = append(path, group.Alias)
			slot.Err = c.groupSlot(req, group, slot, path)
			if slot.Err != nil {
				slot.Groups = nil
			}
			out = append(out, slot)
		}
	}
	return out
}

// slotBase starts a scope over the request entity carrying the where filter.
func (c *compiler) slotBase(req *Request) (*scope, error) {
	s := c.newScope(req.Entity)
	pred, err := s.compileWhere(req.Where, req.Entity, s.alias, "", true, []string{schema.ArgWhere})
	if err != nil {
		return nil, err
	}
	s.addPred(pred)
	return s, nil
}

// countKeys selects the identifiers of the counted rows: the entity rows at
// alias, or the rows of association of when given.
func (c *compiler) countKeys(s *scope, entity *introspection.EntityDescriptor, alias, prefix, of string, path []string) ([]string, bool, error) {
	target, targetAlias := entity, alias
	if of != "" {
		f, ok := entity.Visible(of)
		if !ok || !f.IsAssociation() {
			return nil, false, validationErr(path, "unknown association %q", of)
		}
		j := s.join(joinKey(prefix, "of:"+f.Name), alias, f, JoinLeft, nil)
		target, targetAlias = f.Target, j.Alias
	}
	keys := make([]string, len(target.Identifiers))
	for i, id := range target.Identifiers {
		keys[i] = fmt.Sprintf("%s AS __k%d", sqlutil.QualifiedColumn(targetAlias, id.Column), i)
	}
	return keys, of != "", nil
}

func (c *compiler) countSlot(req *Request, count CountSlot, path []string) (SQLQuery, error) {
	s, err := c.slotBase(req)
	if err != nil {
		return SQLQuery{}, err
	}
	keys, nullable, err := c.countKeys(s, req.Entity, s.alias, "", count.Of, path)
	if err != nil {
		return SQLQuery{}, err
	}
	inner, err := s.apply(sq.Select(keys...).Distinct())
	if err != nil {
		return SQLQuery{}, err
	}
	sql, args, err := sq.Select(countExpr(nullable)).FromSelect(inner, "__agg").PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// groupSlot validates a group and plans it:
//
//	SELECT __g0.., COUNT(..) FROM (SELECT DISTINCT keys, groups ...) AS __agg GROUP BY __g0..
func (c *compiler) groupSlot(req *Request, group *GroupSlot, slot *SlotPlan, path []string) error {
	switch {
	case len(group.By) == 0:
		return &ValidationError{Message: MsgGroupNeedsField, Path: path}
	case len(group.Counts) == 0:
		return &ValidationError{Message: MsgGroupNeedsCount, Path: path}
	case len(group.Counts) > 1:
		return &ValidationError{Message: MsgGroupSingleCount, Path: path}
	}

	s, err := c.slotBase(req)
	if err != nil {
		return err
	}
	entity, alias, prefix := req.Entity, s.alias, ""
	if group.Association != "" {
		f, ok := req.Entity.Visible(group.Association)
		if !ok || !f.IsAssociation() {
			return validationErr(path, "unknown association %q", group.Association)
		}
		j := s.join(f.Name, s.alias, f, JoinInner, nil)
		entity, alias, prefix = f.Target, j.Alias, f.Name
	}

	count := group.Counts[0]
	keys, nullable, err := c.countKeys(s, entity, alias, prefix, count.Of, appendPath(path, count.Alias))
	if err != nil {
		return err
	}

	inner := keys
	var outer, groupBy, orderBy []string
	for i, by := range group.By {
		ref, ok := schema.LookupFieldRef(entity, by.Field)
		if !ok {
			return validationErr(appendPath(path, by.Alias), "unknown group field %q", by.Field)
		}
		name := fmt.Sprintf("__g%d", i)
		inner = append(inner, fmt.Sprintf("%s AS %s", sqlutil.QualifiedColumn(alias, ref.Field.Column), name))
		outer = append(outer, name)
		groupBy = append(groupBy, name)
		if by.Order != nil {
			orderBy = append(orderBy, fmt.Sprintf("%s %s", name, *by.Order))
		}
		slot.Groups = append(slot.Groups, GroupColumn{Key: by.Alias, Scalar: ref.Field.Scalar})
	}
	slot.CountKey = count.Alias

	innerBuilder, err := s.apply(sq.Select(inner...).Distinct())
	if err != nil {
		return err
	}
	builder := sq.Select(append(outer, countExpr(nullable)+" AS __count")...).
		FromSelect(innerBuilder, "__agg").
		GroupBy(groupBy...)
	if len(orderBy) > 0 {
		builder = builder.OrderBy(orderBy...)
	}
	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return err
	}
	slot.Query = SQLQuery{SQL: sql, Args: args}
	return nil
}

// countExpr counts distinct key rows. Keys of an outer-joined association
// are null for rows without related rows and must not be counted.
func countExpr(nullable bool) string {
	if nullable {
		return "COUNT(__k0)"
	}
	return "COUNT(*)"
}
