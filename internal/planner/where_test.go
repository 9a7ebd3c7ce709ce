package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/scalars"
	"entitygraph/internal/schema"
	"entitygraph/internal/sqltype"
)

func TestCompile_WhereOperators(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	task := entity(t, sc, "Task")

	tests := []struct {
		name  string
		where map[string]any
		sql   string
		args  []interface{}
	}{
		{
			name:  "EQ null is IS NULL",
			where: map[string]any{"description": map[string]any{"EQ": nil}},
			sql:   "`__tasks_0`.`description` IS NULL",
		},
		{
			name:  "NE keeps nulls of nullable columns",
			where: map[string]any{"description": map[string]any{"NE": "x"}},
			sql:   "(`__tasks_0`.`description` <> ? OR `__tasks_0`.`description` IS NULL)",
			args:  []interface{}{"x"},
		},
		{
			name:  "NE on a required column",
			where: map[string]any{"name": map[string]any{"NE": "x"}},
			sql:   "`__tasks_0`.`name` <> ?",
			args:  []interface{}{"x"},
		},
		{
			name:  "GE",
			where: map[string]any{"priority": map[string]any{"GE": 2}},
			sql:   "`__tasks_0`.`priority` >= ?",
			args:  []interface{}{2},
		},
		{
			name:  "BETWEEN binds dates",
			where: map[string]any{"dueDate": map[string]any{"BETWEEN": []any{"2019-08-05", "2019-08-05"}}},
			sql:   "`__tasks_0`.`due_date` BETWEEN ? AND ?",
			args:  []interface{}{"2019-08-05", "2019-08-05"},
		},
		{
			name:  "NOT_BETWEEN keeps nulls",
			where: map[string]any{"dueDate": map[string]any{"NOT_BETWEEN": []any{"2019-08-01", "2019-08-03"}}},
			sql:   "(`__tasks_0`.`due_date` NOT BETWEEN ? AND ? OR `__tasks_0`.`due_date` IS NULL)",
			args:  []interface{}{"2019-08-01", "2019-08-03"},
		},
		{
			name:  "empty IN matches nothing",
			where: map[string]any{"priority": map[string]any{"IN": []any{}}},
			sql:   "1=0",
		},
		{
			name:  "IN",
			where: map[string]any{"priority": map[string]any{"IN": []any{1, 3}}},
			sql:   "`__tasks_0`.`priority` IN (?,?)",
			args:  []interface{}{1, 3},
		},
		{
			name:  "NIN keeps nulls",
			where: map[string]any{"description": map[string]any{"NIN": []any{"a"}}},
			sql:   "(`__tasks_0`.`description` NOT IN (?) OR `__tasks_0`.`description` IS NULL)",
			args:  []interface{}{"a"},
		},
		{
			name:  "NIN with null excludes nulls",
			where: map[string]any{"description": map[string]any{"NIN": []any{"a", nil}}},
			sql:   "(`__tasks_0`.`description` NOT IN (?) AND `__tasks_0`.`description` IS NOT NULL)",
			args:  []interface{}{"a"},
		},
		{
			name:  "LIKE",
			where: map[string]any{"name": map[string]any{"LIKE": "Re%"}},
			sql:   "`__tasks_0`.`name` LIKE ?",
			args:  []interface{}{"Re%"},
		},
		{
			name:  "LOCATE",
			where: map[string]any{"name": map[string]any{"LOCATE": "o"}},
			sql:   "INSTR(`__tasks_0`.`name`, ?) > 0",
			args:  []interface{}{"o"},
		},
		{
			name:  "IS_NULL false on an embedded column",
			where: map[string]any{"address": map[string]any{"city": map[string]any{"IS_NULL": false}}},
			sql:   "`__tasks_0`.`addr_city` IS NOT NULL",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			node, err := ParseWhere(task, tc.where, nil)
			require.NoError(t, err)
			plan, err := Compile(context.Background(), sc, selectIDs(task, node))
			require.NoError(t, err)

			assert.Contains(t, plan.Root.Query.SQL, "WHERE ("+tc.sql+")")
			if tc.args == nil {
				assert.Empty(t, plan.Root.Query.Args)
			} else {
				assert.Equal(t, tc.args, plan.Root.Query.Args)
			}
		})
	}
}

func TestCompile_EmptyNINMatchesEverything(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	task := entity(t, sc, "Task")
	node, err := ParseWhere(task, map[string]any{"priority": map[string]any{"NIN": []any{}}}, nil)
	require.NoError(t, err)

	plan, err := Compile(context.Background(), sc, selectIDs(task, node))
	require.NoError(t, err)
	assert.NotContains(t, plan.Root.Query.SQL, "WHERE")
}

func TestCompile_InvalidFilterValue(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	task := entity(t, sc, "Task")
	node, err := ParseWhere(task, map[string]any{"dueDate": map[string]any{"EQ": "not a date"}}, []string{"where"})
	require.NoError(t, err)

	_, err = Compile(context.Background(), sc, selectIDs(task, node))
	require.Error(t, err)
	var coercion *scalars.CoercionError
	require.ErrorAs(t, err, &coercion)
	assert.Equal(t, []string{"where", "dueDate", "EQ"}, coercion.Path)
	assert.Equal(t, sqltype.LocalDate, coercion.Kind)
	assert.Equal(t, "COERCION_ERROR", coercion.Extensions()["code"])
	assert.False(t, IsValidation(err))
}

func TestCompile_AssociationFilters(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())

	t.Run("to-one in conjunctive position joins inner", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks(where: {assignee: {name: {EQ: "Ada"}}}) { select { id } } }`)
		assert.Equal(t,
			"SELECT `__tasks_0`.`id` AS __c0 FROM `tasks` AS `__tasks_0` "+
				"INNER JOIN `users` AS `__users_1` ON `__users_1`.`id` = `__tasks_0`.`assignee_id` "+
				"WHERE (`__users_1`.`name` = ?) ORDER BY __c0 ASC",
			plan.Root.Query.SQL)
		assert.Equal(t, []interface{}{"Ada"}, plan.Root.Query.Args)
		require.Len(t, plan.Joins, 1)
		assert.Equal(t, "assignee", plan.Joins[0].Path)
		assert.Equal(t, JoinInner, plan.Joins[0].Kind)
	})

	t.Run("to-one under NOT becomes EXISTS", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks(where: {NOT: {assignee: {name: {EQ: "Ada"}}}}) { select { id } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"NOT (EXISTS (SELECT 1 FROM `users` AS `__users_1` WHERE (`__users_1`.`id` = `__tasks_0`.`assignee_id` AND `__users_1`.`name` = ?)))")
		assert.NotContains(t, plan.Root.Query.SQL, "JOIN")
		require.Len(t, plan.Joins, 1)
		assert.Equal(t, JoinExists, plan.Joins[0].Kind)
	})

	t.Run("to-many becomes a correlated EXISTS", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks(where: {variables: {name: {EQ: "variable5"}}}) { select { id } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"WHERE (EXISTS (SELECT 1 FROM `task_variables` AS `__task_variables_1` WHERE (`__task_variables_1`.`task_id` = `__tasks_0`.`id` AND `__task_variables_1`.`name` = ?)))")
		assert.Equal(t, []interface{}{"variable5"}, plan.Root.Query.Args)
	})

	t.Run("NOT_EXISTS through a junction table", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks(where: {NOT_EXISTS: {tags: {label: {EQ: "urgent"}}}}) { select { id } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"NOT EXISTS (SELECT 1 FROM `tags` AS `__tags_1` "+
				"INNER JOIN `task_tags` AS `__task_tags_2` ON `__task_tags_2`.`tag_id` = `__tags_1`.`id` "+
				"WHERE (`__task_tags_2`.`task_id` = `__tasks_0`.`id` AND `__tags_1`.`label` = ?))")
	})

	t.Run("to-one filter inside a subquery joins there", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Users(where: {EXISTS: {tasks: {assignee: {email: {IS_NULL: true}}}}}) { select { id } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"EXISTS (SELECT 1 FROM `tasks` AS `__tasks_1` INNER JOIN `users` AS `__users_2` ON `__users_2`.`id` = `__tasks_1`.`assignee_id`")
	})

	t.Run("OR of filters", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks(where: {OR: [{status: {EQ: "CLOSED"}}, {priority: {EQ: 3}}]}) { select { id } } }`)
		assert.Contains(t, plan.Root.Query.SQL, "WHERE ((`__tasks_0`.`status` = ? OR `__tasks_0`.`priority` = ?))")
	})
}
