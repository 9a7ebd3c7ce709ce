package schema

import (
	"errors"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/introspection"
	"entitygraph/internal/scalars"
	"entitygraph/internal/testutil"
)

type stubResolvers struct {
	query  map[string]any
	lookup map[string]any
}

func (s stubResolvers) ResolveQuery(*introspection.EntityDescriptor) graphql.FieldResolveFn {
	return func(graphql.ResolveParams) (interface{}, error) { return s.query, nil }
}

func (s stubResolvers) ResolveLookup(*introspection.EntityDescriptor) graphql.FieldResolveFn {
	return func(graphql.ResolveParams) (interface{}, error) { return s.lookup, nil }
}

func buildTaskTypes(t *testing.T, opts Options, resolvers Resolvers) *Types {
	t.Helper()
	types, err := Build(testutil.TaskGraph(t), scalars.NewRegistry(), opts, resolvers)
	require.NoError(t, err)
	return types
}

func TestBuild_EntityTypes(t *testing.T) {
	types := buildTaskTypes(t, DefaultOptions(), stubResolvers{})

	task, ok := types.Entity("Task")
	require.True(t, ok)

	fields := task.Result.Fields()
	for _, name := range []string{"id", "name", "dueDate", "address", "assignee", "variables", "tags"} {
		assert.Contains(t, fields, name)
	}
	assert.Equal(t, "Long!", fields["id"].Type.String())
	assert.Equal(t, "LocalDate", fields["dueDate"].Type.String())
	assert.Equal(t, "[TaskVariable!]!", fields["variables"].Type.String())

	var variableArgs []string
	for _, arg := range fields["variables"].Args {
		variableArgs = append(variableArgs, arg.Name())
	}
	assert.ElementsMatch(t, []string{ArgWhere, ArgPage, ArgOrderBy, ArgOptional}, variableArgs)

	var assigneeArgs []string
	for _, arg := range fields["assignee"].Args {
		assigneeArgs = append(assigneeArgs, arg.Name())
	}
	assert.ElementsMatch(t, []string{ArgWhere, ArgOptional}, assigneeArgs)

	require.Len(t, fields["name"].Args, 1)
	assert.Equal(t, ArgOrderBy, fields["name"].Args[0].Name())
}

func TestBuild_WhereInput(t *testing.T) {
	types := buildTaskTypes(t, DefaultOptions(), stubResolvers{})
	task, _ := types.Entity("Task")

	where := task.Where.Fields()
	for _, name := range []string{"name", "dueDate", "address", "assignee", "variables", WhereAnd, WhereOr, WhereNot, WhereExists, WhereNotExists} {
		assert.Contains(t, where, name)
	}
	assert.Equal(t, "StringCriteria", where["name"].Type.String())
	assert.Equal(t, "AddressWhere", where["address"].Type.String())
	assert.Equal(t, "TaskVariableWhere", where["variables"].Type.String())
	assert.Equal(t, "[TaskWhere!]", where[WhereOr].Type.String())
	assert.Equal(t, "TaskExistsWhere", where[WhereExists].Type.String())

	exists := task.ExistsWhere.Fields()
	assert.Len(t, exists, 3)

	dates, ok := where["dueDate"].Type.(*graphql.InputObject)
	require.True(t, ok)
	assert.Contains(t, dates.Fields(), "BETWEEN")
	assert.Equal(t, "[LocalDate!]", dates.Fields()["BETWEEN"].Type.String())
	assert.NotContains(t, dates.Fields(), "LIKE")

	names, _ := where["name"].Type.(*graphql.InputObject)
	assert.Contains(t, names.Fields(), "LOCATE")
	assert.NotContains(t, names.Fields(), "GT")
	assert.Equal(t, "Boolean", names.Fields()["IS_NULL"].Type.String())
}

func TestBuild_AggregateTypes(t *testing.T) {
	types := buildTaskTypes(t, DefaultOptions(), stubResolvers{})
	variable, _ := types.Entity("TaskVariable")

	aggregate := variable.Aggregate.Fields()
	assert.Contains(t, aggregate, FieldCount)
	assert.Contains(t, aggregate, FieldGroup)
	assert.Contains(t, aggregate, FieldBy)
	require.Len(t, aggregate[FieldCount].Args, 1)
	assert.Equal(t, "TaskVariableAssociation", aggregate[FieldCount].Args[0].Type.String())

	group := variable.Group.Fields()
	assert.Contains(t, group, FieldBy)
	assert.Contains(t, group, FieldCount)

	task, _ := types.Entity("Task")
	by := task.AggregateBy.Fields()
	assert.Equal(t, "[TaskVariableGroup!]", by["variables"].Type.String())

	query := task.Query.Fields()
	assert.Contains(t, query, FieldAggregate)
	assert.Equal(t, "[Task!]!", query[FieldSelect].Type.String())
}

func TestBuild_OptionsShapeSchema(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableAggregate = false
	opts.UseDistinctParameter = true
	types := buildTaskTypes(t, opts, stubResolvers{})

	task, _ := types.Entity("Task")
	assert.Nil(t, task.Aggregate)
	assert.NotContains(t, task.Query.Fields(), FieldAggregate)

	root := types.Schema.QueryType().Fields()
	require.Contains(t, root, "Tasks")
	var args []string
	for _, arg := range root["Tasks"].Args {
		args = append(args, arg.Name())
	}
	assert.Contains(t, args, ArgDistinct)

	require.Contains(t, root, "Task")
	require.Len(t, root["Task"].Args, 1)
	assert.Equal(t, "id", root["Task"].Args[0].Name())
	assert.Equal(t, "Long!", root["Task"].Args[0].Type.String())
}

func TestFromSource_UsesResponseKeys(t *testing.T) {
	resolvers := stubResolvers{
		query: map[string]any{
			"rows": []any{
				map[string]any{"id": int64(1), "title": "Write docs", "address": map[string]any{"city": "Berlin"}},
			},
			"total": int64(6),
		},
	}
	types := buildTaskTypes(t, DefaultOptions(), resolvers)

	result := graphql.Do(graphql.Params{
		Schema:        types.Schema,
		RequestString: `{ Tasks { rows: select { id title: name address { city } } total } }`,
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	tasks := data["Tasks"].(map[string]interface{})
	assert.EqualValues(t, 6, tasks["total"])
	rows := tasks["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "Write docs", row["title"])
	assert.Equal(t, "Berlin", row["address"].(map[string]interface{})["city"])
}

func TestFromSource_StoredError(t *testing.T) {
	resolvers := stubResolvers{
		query: map[string]any{
			"select":    []any{},
			"aggregate": map[string]any{"count": errors.New("slot failed")},
		},
	}
	types := buildTaskTypes(t, DefaultOptions(), resolvers)

	result := graphql.Do(graphql.Params{
		Schema:        types.Schema,
		RequestString: `{ Tasks { select { id } aggregate { count } } }`,
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "slot failed")

	data := result.Data.(map[string]interface{})
	aggregate := data["Tasks"].(map[string]interface{})["aggregate"].(map[string]interface{})
	assert.Nil(t, aggregate["count"])
}

func TestFieldRefs(t *testing.T) {
	graph := testutil.TaskGraph(t)
	task, err := graph.Describe("Task")
	require.NoError(t, err)

	ref, ok := LookupFieldRef(task, "address_city")
	require.True(t, ok)
	assert.Equal(t, []string{"address", "city"}, ref.Path)
	assert.Equal(t, "addr_city", ref.Field.Column)

	_, ok = LookupFieldRef(task, "assignee")
	assert.False(t, ok)
}
