package planner

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"

	"entitygraph/internal/introspection"
	"entitygraph/internal/schema"
	"entitygraph/internal/sqltype"
)

// ParseInput carries the AST state of one root field.
type ParseInput struct {
	Field     *ast.Field
	Fragments map[string]ast.Definition
	Variables map[string]interface{}
}

type astParser struct {
	fragments map[string]ast.Definition
	variables map[string]interface{}
}

// ParseRequest lowers a root field to a Request. Arguments are read from the
// AST so nested fields keep their own arguments per alias.
func ParseRequest(entity *introspection.EntityDescriptor, single bool, in ParseInput) (*Request, error) {
	if in.Field == nil {
		return nil, fmt.Errorf("parse request: nil field")
	}
	p := &astParser{fragments: in.Fragments, variables: in.Variables}
	args := p.arguments(in.Field)
	req := &Request{Entity: entity, Single: single}

	if single {
		var leaves []*WhereNode
		for _, id := range entity.Identifiers {
			value, ok := args[id.Name]
			if !ok {
				return nil, validationErr([]string{id.Name}, "missing identifier argument")
			}
			leaves = append(leaves, &WhereNode{Kind: NodeLeaf, Path: []string{id.Name}, Op: sqltype.EQ, Value: value})
		}
		req.Where = And(leaves...)
		children, err := p.selection(entity, p.collect(in.Field.SelectionSet), nil)
		if err != nil {
			return nil, err
		}
		req.Select = []*SelectionNode{{Children: children}}
		return req, nil
	}

	var err error
	if req.Where, err = ParseWhere(entity, args[schema.ArgWhere], []string{schema.ArgWhere}); err != nil {
		return nil, err
	}
	if req.Page, err = parsePage(args[schema.ArgPage], []string{schema.ArgPage}); err != nil {
		return nil, err
	}
	if req.OrderBy, err = parseOrderList(args[schema.ArgOrderBy], []string{schema.ArgOrderBy}); err != nil {
		return nil, err
	}
	if raw, ok := args[schema.ArgDistinct]; ok && raw != nil {
		distinct, ok := raw.(bool)
		if !ok {
			return nil, validationErr([]string{schema.ArgDistinct}, "distinct must be a boolean")
		}
		req.Distinct = &distinct
	}

	for _, group := range p.collect(in.Field.SelectionSet) {
		switch group.name {
		case schema.FieldSelect:
			children, err := p.selection(entity, p.children(group), []string{group.key})
			if err != nil {
				return nil, err
			}
			req.Select = append(req.Select, &SelectionNode{Field: schema.FieldSelect, Alias: group.key, Children: children})
		case schema.FieldTotal:
			req.Totals = append(req.Totals, group.key)
		case schema.FieldPages:
			req.Pages = append(req.Pages, group.key)
		case schema.FieldAggregate:
			agg, err := p.aggregate(entity, group)
			if err != nil {
				return nil, err
			}
			req.Aggregates = append(req.Aggregates, agg)
		}
	}
	return req, nil
}

// fieldGroup is every AST field sharing one response key. GraphQL merges
// their selection sets.
type fieldGroup struct {
	key    string
	name   string
	fields []*ast.Field
}

func (g fieldGroup) first() *ast.Field { return g.fields[0] }

func (p *astParser) collect(set *ast.SelectionSet) []fieldGroup {
	var groups []fieldGroup
	index := map[string]int{}
	visited := map[string]bool{}
	var visit func(set *ast.SelectionSet)
	visit = func(set *ast.SelectionSet) {
		if set == nil {
			return
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if sel.Name == nil || !p.included(sel.Directives) {
					continue
				}
				name := sel.Name.Value
				if name == "__typename" {
					continue
				}
				key := name
				if sel.Alias != nil && sel.Alias.Value != "" {
					key = sel.Alias.Value
				}
				if i, ok := index[key]; ok {
					groups[i].fields = append(groups[i].fields, sel)
					continue
				}
				index[key] = len(groups)
				groups = append(groups, fieldGroup{key: key, name: name, fields: []*ast.Field{sel}})
			case *ast.InlineFragment:
				if p.included(sel.Directives) {
					visit(sel.SelectionSet)
				}
			case *ast.FragmentSpread:
				if sel.Name == nil || !p.included(sel.Directives) || visited[sel.Name.Value] {
					continue
				}
				fragment, ok := p.fragments[sel.Name.Value].(*ast.FragmentDefinition)
				if !ok {
					continue
				}
				visited[sel.Name.Value] = true
				visit(fragment.SelectionSet)
				delete(visited, sel.Name.Value)
			}
		}
	}
	visit(set)
	return groups
}

func (p *astParser) children(group fieldGroup) []fieldGroup {
	var merged []fieldGroup
	index := map[string]int{}
	for _, f := range group.fields {
		for _, child := range p.collect(f.SelectionSet) {
			if i, ok := index[child.key]; ok {
				merged[i].fields = append(merged[i].fields, child.fields...)
				continue
			}
			index[child.key] = len(merged)
			merged = append(merged, child)
		}
	}
	return merged
}

// included evaluates @skip and @include.
func (p *astParser) included(directives []*ast.Directive) bool {
	for _, d := range directives {
		if d.Name == nil {
			continue
		}
		var cond bool
		for _, arg := range d.Arguments {
			if arg.Name != nil && arg.Name.Value == "if" {
				cond, _ = p.value(arg.Value).(bool)
			}
		}
		switch d.Name.Value {
		case "skip":
			if cond {
				return false
			}
		case "include":
			if !cond {
				return false
			}
		}
	}
	return true
}

func (p *astParser) arguments(field *ast.Field) map[string]any {
	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		if arg.Name == nil {
			continue
		}
		args[arg.Name.Value] = p.value(arg.Value)
	}
	return args
}

// value lowers an AST value. Numbers keep their text as json.Number and enum
// values become their names.
func (p *astParser) value(v ast.Value) any {
	switch val := v.(type) {
	case *ast.Variable:
		if val.Name == nil {
			return nil
		}
		return p.variables[val.Name.Value]
	case *ast.IntValue:
		return json.Number(val.Value)
	case *ast.FloatValue:
		return json.Number(val.Value)
	case *ast.StringValue:
		return val.Value
	case *ast.BooleanValue:
		return val.Value
	case *ast.EnumValue:
		return val.Value
	case *ast.ListValue:
		out := make([]any, len(val.Values))
		for i, item := range val.Values {
			out[i] = p.value(item)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			if f.Name != nil {
				out[f.Name.Value] = p.value(f.Value)
			}
		}
		return out
	}
	return nil
}

type fieldLookup func(name string) (*introspection.FieldDescriptor, bool)

func (p *astParser) selection(entity *introspection.EntityDescriptor, groups []fieldGroup, path []string) ([]*SelectionNode, error) {
	return p.selectionIn(entity.Visible, groups, path)
}

func (p *astParser) selectionIn(lookup fieldLookup, groups []fieldGroup, path []string) ([]*SelectionNode, error) {
	nodes := make([]*SelectionNode, 0, len(groups))
	for _, group := range groups {
		fieldPath := appendPath(path, group.key)
		f, ok := lookup(group.name)
		if !ok {
			return nil, validationErr(fieldPath, "unknown field %q", group.name)
		}
		node := &SelectionNode{Field: f.Name}
		if group.key != group.name {
			node.Alias = group.key
		}
		args := p.arguments(group.first())
		var err error
		switch f.Kind {
		case introspection.KindScalar:
			if raw, ok := args[schema.ArgOrderBy]; ok && raw != nil {
				dir, err := parseDirection(raw, appendPath(fieldPath, schema.ArgOrderBy))
				if err != nil {
					return nil, err
				}
				node.Order = &dir
			}
		case introspection.KindEmbedded:
			node.Children, err = p.selectionIn(f.Embedded.Field, p.children(group), fieldPath)
		case introspection.KindToOne, introspection.KindToMany:
			if node.Where, err = ParseWhere(f.Target, args[schema.ArgWhere], appendPath(fieldPath, schema.ArgWhere)); err != nil {
				return nil, err
			}
			if raw, ok := args[schema.ArgOptional]; ok && raw != nil {
				optional, ok := raw.(bool)
				if !ok {
					return nil, validationErr(fieldPath, "optional must be a boolean")
				}
				node.Optional = &optional
			}
			if f.Kind == introspection.KindToMany {
				if node.Page, err = parsePage(args[schema.ArgPage], appendPath(fieldPath, schema.ArgPage)); err != nil {
					return nil, err
				}
				if node.OrderBy, err = parseOrderList(args[schema.ArgOrderBy], appendPath(fieldPath, schema.ArgOrderBy)); err != nil {
					return nil, err
				}
			}
			node.Children, err = p.selection(f.Target, p.children(group), fieldPath)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *astParser) aggregate(entity *introspection.EntityDescriptor, group fieldGroup) (*AggregateSpec, error) {
	spec := &AggregateSpec{Alias: group.key}
	for _, child := range p.children(group) {
		switch child.name {
		case schema.FieldCount:
			spec.Counts = append(spec.Counts, p.count(child))
		case schema.FieldGroup:
			slot := p.group(child)
			slot.Alias = child.key
			spec.Groups = append(spec.Groups, slot)
		case schema.FieldBy:
			for _, assoc := range p.children(child) {
				slot := p.group(assoc)
				slot.Container = child.key
				slot.Alias = assoc.key
				slot.Association = assoc.name
				spec.Groups = append(spec.Groups, slot)
			}
		}
	}
	return spec, nil
}

func (p *astParser) count(group fieldGroup) CountSlot {
	slot := CountSlot{Alias: group.key}
	if of, ok := p.arguments(group.first())[schema.ArgOf].(string); ok {
		slot.Of = of
	}
	return slot
}

// group parses the members of a group selection. Malformed groups are kept
// as parsed and rejected per slot by the compiler.
func (p *astParser) group(group fieldGroup) *GroupSlot {
	slot := &GroupSlot{}
	for _, member := range p.children(group) {
		switch member.name {
		case schema.FieldBy:
			args := p.arguments(member.first())
			by := GroupBy{Alias: member.key}
			by.Field, _ = args[schema.ArgField].(string)
			if raw, ok := args[schema.ArgOrderBy]; ok && raw != nil {
				if dir, err := parseDirection(raw, nil); err == nil {
					by.Order = &dir
				}
			}
			slot.By = append(slot.By, by)
		case schema.FieldCount:
			slot.Counts = append(slot.Counts, p.count(member))
		}
	}
	return slot
}

// ParseWhere lowers a where input value. Keys of one object are combined
// with AND in sorted order so equal inputs compile to equal SQL.
func ParseWhere(entity *introspection.EntityDescriptor, raw any, path []string) (*WhereNode, error) {
	if raw == nil {
		return nil, nil
	}
	input, ok := raw.(map[string]any)
	if !ok {
		return nil, validationErr(path, "where must be an object")
	}
	var nodes []*WhereNode
	for _, key := range sortedKeys(input) {
		value := input[key]
		keyPath := appendPath(path, key)
		var (
			node *WhereNode
			err  error
		)
		switch key {
		case schema.WhereAnd, schema.WhereOr:
			node, err = parseWhereList(entity, key, value, keyPath)
		case schema.WhereNot:
			var child *WhereNode
			child, err = ParseWhere(entity, value, keyPath)
			if child != nil {
				node = &WhereNode{Kind: NodeNot, Children: []*WhereNode{child}}
			}
		case schema.WhereExists, schema.WhereNotExists:
			node, err = parseExists(entity, key, value, keyPath)
		default:
			f, found := entity.Visible(key)
			if !found {
				return nil, validationErr(keyPath, "unknown filter field %q", key)
			}
			switch f.Kind {
			case introspection.KindToOne, introspection.KindToMany:
				var child *WhereNode
				if child, err = ParseWhere(f.Target, value, keyPath); err == nil {
					node = &WhereNode{Kind: NodeAssociation, Path: []string{f.Name}}
					if child != nil {
						node.Children = []*WhereNode{child}
					}
				}
			default:
				node, err = parseFieldCriteria(f, []string{f.Name}, value, keyPath)
			}
		}
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return And(nodes...), nil
}

func parseWhereList(entity *introspection.EntityDescriptor, key string, value any, path []string) (*WhereNode, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	kind := NodeAnd
	if key == schema.WhereOr {
		kind = NodeOr
	}
	node := &WhereNode{Kind: kind}
	for i, item := range items {
		child, err := ParseWhere(entity, item, appendPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		if child == nil {
			// An empty object matches everything.
			child = &WhereNode{Kind: NodeAnd}
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func parseExists(entity *introspection.EntityDescriptor, key string, value any, path []string) (*WhereNode, error) {
	if value == nil {
		return nil, nil
	}
	input, ok := value.(map[string]any)
	if !ok {
		return nil, validationErr(path, "%s must be an object", key)
	}
	kind := NodeExists
	if key == schema.WhereNotExists {
		kind = NodeNotExists
	}
	var nodes []*WhereNode
	for _, name := range sortedKeys(input) {
		f, found := entity.Visible(name)
		if !found || !f.IsAssociation() {
			return nil, validationErr(appendPath(path, name), "unknown association %q", name)
		}
		child, err := ParseWhere(f.Target, input[name], appendPath(path, name))
		if err != nil {
			return nil, err
		}
		node := &WhereNode{Kind: kind, Path: []string{f.Name}}
		if child != nil {
			node.Children = []*WhereNode{child}
		}
		nodes = append(nodes, node)
	}
	return And(nodes...), nil
}

// parseFieldCriteria handles scalar criteria and embedded where inputs.
func parseFieldCriteria(f *introspection.FieldDescriptor, fieldPath []string, value any, path []string) (*WhereNode, error) {
	if value == nil {
		return nil, nil
	}
	input, ok := value.(map[string]any)
	if !ok {
		return nil, validationErr(path, "criteria must be an object")
	}
	var nodes []*WhereNode
	for _, key := range sortedKeys(input) {
		keyPath := appendPath(path, key)
		if f.Kind == introspection.KindEmbedded {
			child, found := f.Embedded.Field(key)
			if !found || child.IsAssociation() {
				return nil, validationErr(keyPath, "unknown filter field %q", key)
			}
			node, err := parseFieldCriteria(child, appendPath(fieldPath, child.Name), input[key], keyPath)
			if err != nil {
				return nil, err
			}
			if node != nil {
				nodes = append(nodes, node)
			}
			continue
		}
		op, found := sqltype.ParseOperator(key)
		if !found {
			return nil, validationErr(keyPath, "unknown operator %q", key)
		}
		if !f.Filterable || !op.AppliesTo(f.Scalar) {
			return nil, validationErr(keyPath, "operator %s does not apply to %s field %s", op, f.Scalar, f.Name)
		}
		raw := input[key]
		if op == sqltype.IS_NULL && raw == nil {
			continue
		}
		if op.TakesList() {
			list, isList := raw.([]any)
			if !isList {
				list = []any{raw}
			}
			if (op == sqltype.BETWEEN || op == sqltype.NOT_BETWEEN) && len(list) != 2 {
				return nil, &ValidationError{Message: fmt.Sprintf("%s needs exactly two values, got %d", op, len(list)), Path: keyPath, Value: raw}
			}
			raw = list
		}
		nodes = append(nodes, &WhereNode{Kind: NodeLeaf, Path: append([]string(nil), fieldPath...), Op: op, Value: raw})
	}
	return And(nodes...), nil
}

func parsePage(raw any, path []string) (*PageSpec, error) {
	if raw == nil {
		return nil, nil
	}
	input, ok := raw.(map[string]any)
	if !ok {
		return nil, validationErr(path, "page must be an object")
	}
	page := &PageSpec{Start: 1}
	if v, ok := input[schema.PageStart]; ok && v != nil {
		start, err := toInt(v)
		if err != nil || start < 1 {
			return nil, &ValidationError{Message: "page start must be a positive integer", Path: appendPath(path, schema.PageStart), Value: v}
		}
		page.Start = start
	}
	if v, ok := input[schema.PageLimit]; ok && v != nil {
		limit, err := toInt(v)
		if err != nil || limit < 0 {
			return nil, &ValidationError{Message: "page limit must be a non-negative integer", Path: appendPath(path, schema.PageLimit), Value: v}
		}
		page.Limit = limit
		page.Limited = true
	}
	return page, nil
}

func parseOrderList(raw any, path []string) ([]OrderSpec, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	out := make([]OrderSpec, 0, len(items))
	for i, item := range items {
		itemPath := appendPath(path, strconv.Itoa(i))
		input, ok := item.(map[string]any)
		if !ok {
			return nil, validationErr(itemPath, "order entry must be an object")
		}
		field, ok := input[schema.OrderField].(string)
		if !ok || field == "" {
			return nil, validationErr(itemPath, "order entry needs a field")
		}
		spec := OrderSpec{Field: field}
		if dir, ok := input[schema.OrderDirection]; ok && dir != nil {
			parsed, err := parseDirection(dir, appendPath(itemPath, schema.OrderDirection))
			if err != nil {
				return nil, err
			}
			spec.Direction = parsed
		}
		out = append(out, spec)
	}
	return out, nil
}

func parseDirection(raw any, path []string) (Direction, error) {
	switch raw {
	case schema.DirectionAsc:
		return Asc, nil
	case schema.DirectionDesc:
		return Desc, nil
	}
	return Asc, &ValidationError{Message: "direction must be ASC or DESC", Path: path, Value: raw}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendPath(path []string, elems ...string) []string {
	out := make([]string, 0, len(path)+len(elems))
	out = append(out, path...)
	return append(out, elems...)
}
