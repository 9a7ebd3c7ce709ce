package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/schema"
)

func TestCompile_SelectionShape(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{
		Tasks {
			select {
				id
				assignee { name }
				variables(page: {limit: 2}) { name }
			}
		}
	}`)

	assert.Equal(t,
		"SELECT DISTINCT `__tasks_0`.`id` AS __c0, `__users_1`.`name` AS __c1, `__users_1`.`id` AS __c2 "+
			"FROM `tasks` AS `__tasks_0` "+
			"LEFT JOIN `users` AS `__users_1` ON `__users_1`.`id` = `__tasks_0`.`assignee_id` "+
			"ORDER BY __c0 ASC",
		plan.Root.Query.SQL)
	assert.True(t, plan.Distinct)
	assert.Equal(t, []string{"__c0", "__c1", "__c2"}, plan.Root.Columns)
	assert.Equal(t, []int{0}, plan.Root.Key)

	require.Len(t, plan.Root.Outputs, 1)
	root := plan.Root.Outputs[0]
	assert.Equal(t, OutputRoot, root.Kind)
	require.Len(t, root.Children, 3)
	assert.Equal(t, OutputScalar, root.Children[0].Kind)
	assignee := root.Children[1]
	assert.Equal(t, OutputToOne, assignee.Kind)
	assert.Equal(t, []int{2}, assignee.Presence)
	variables := root.Children[2]
	require.Equal(t, OutputToMany, variables.Kind)
	assert.Equal(t, []int{0}, variables.ParentKey)

	require.Len(t, plan.Root.Batches, 1)
	batch := plan.Root.Batches[0]
	assert.Same(t, batch, variables.Batch)
	assert.Equal(t, 1, batch.ParentWidth())

	query, err := batch.SQL([]ParentTuple{{Values: []any{1}}, {Values: []any{2}}})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT __c0, __c1, __batch_parent_id FROM ("+
			"SELECT `__task_variables_2`.`name` AS __c0, `__task_variables_2`.`id` AS __c1, `__task_variables_2`.`task_id` AS __batch_parent_id, "+
			"ROW_NUMBER() OVER (PARTITION BY `__task_variables_2`.`task_id` ORDER BY `__task_variables_2`.`id` ASC) AS __rn "+
			"FROM `task_variables` AS `__task_variables_2` WHERE `__task_variables_2`.`task_id` IN (?,?)"+
			") AS __batch WHERE __rn > ? AND __rn <= ? ORDER BY __batch_parent_id, __rn",
		query.SQL)
	assert.Equal(t, []interface{}{1, 2, 0, 2}, query.Args)
}

func TestCompile_DistinctPolicy(t *testing.T) {
	query := `{ Tasks(distinct: false) { select { id variables { name } } } }`

	opts := schema.DefaultOptions()
	plan := compileQuery(t, taskContext(t, opts), query)
	assert.True(t, plan.Distinct, "argument ignored unless enabled")

	opts.UseDistinctParameter = true
	plan = compileQuery(t, taskContext(t, opts), query)
	assert.False(t, plan.Distinct)
	assert.NotContains(t, plan.Root.Query.SQL, "DISTINCT")

	plan = compileQuery(t, taskContext(t, opts), `{ Tasks { select { id } } }`)
	assert.False(t, plan.Distinct, "no to-many selected")
}

func TestCompile_Paging(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{ Tasks(page: {start: 3, limit: 2}) { select { id } total pages } }`)

	assert.Equal(t, "SELECT `__tasks_0`.`id` AS __c0 FROM `tasks` AS `__tasks_0` ORDER BY __c0 ASC LIMIT 2 OFFSET 4", plan.Root.Query.SQL)
	require.NotNil(t, plan.Total)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT DISTINCT `__tasks_0`.`id` AS __k0 FROM `tasks` AS `__tasks_0`) AS __total", plan.Total.SQL)
	assert.Equal(t, []string{"total"}, plan.Totals)
	assert.Equal(t, []string{"pages"}, plan.Pages)

	assert.EqualValues(t, 3, plan.PageCount(6))
	assert.EqualValues(t, 3, plan.PageCount(5))
	assert.EqualValues(t, 0, plan.PageCount(0))

	plan = compileQuery(t, sc, `{ Tasks(page: {limit: 0}) { select { id } } }`)
	assert.Contains(t, plan.Root.Query.SQL, "LIMIT 0")
	assert.EqualValues(t, 0, plan.PageCount(6))

	plan = compileQuery(t, sc, `{ Tasks { select { id } } }`)
	assert.NotContains(t, plan.Root.Query.SQL, "LIMIT")
	assert.EqualValues(t, 1, plan.PageCount(6))
}

func TestCompile_DefaultLimit(t *testing.T) {
	opts := schema.DefaultOptions()
	opts.DefaultLimit = 2
	sc := taskContext(t, opts)

	plan := compileQuery(t, sc, `{ Tasks { select { id } } }`)
	assert.Equal(t, PageSpec{Start: 1, Limit: 2, Limited: true}, plan.Page)
	assert.Contains(t, plan.Root.Query.SQL, "ORDER BY __c0 ASC LIMIT 2")
	assert.NotContains(t, plan.Root.Query.SQL, "OFFSET")

	plan = compileQuery(t, sc, `{ Tasks(page: {start: 2}) { select { id } } }`)
	assert.Contains(t, plan.Root.Query.SQL, "LIMIT 2 OFFSET 2")

	plan = compileQuery(t, sc, `{ Task(id: 1) { id } }`)
	assert.NotContains(t, plan.Root.Query.SQL, "LIMIT")
}

func TestCompile_Ordering(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{
		Tasks(orderBy: [{field: priority, direction: DESC}]) {
			select { id name(orderBy: DESC) }
		}
	}`)

	assert.Contains(t, plan.Root.Query.SQL,
		"SELECT `__tasks_0`.`priority` AS __c0, `__tasks_0`.`id` AS __c1, `__tasks_0`.`name` AS __c2 ")
	assert.Contains(t, plan.Root.Query.SQL, "ORDER BY __c0 DESC, __c2 DESC, __c1 ASC")

	_, err := Compile(context.Background(), sc, mustParse(t, sc, `{ Tasks(orderBy: [{field: nope}]) { select { id } } }`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCompile_Lookup(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{ Task(id: 3) { name } }`)

	assert.True(t, plan.Single)
	assert.Equal(t,
		"SELECT `__tasks_0`.`name` AS __c0, `__tasks_0`.`id` AS __c1 FROM `tasks` AS `__tasks_0` WHERE (`__tasks_0`.`id` = ?) ORDER BY __c1 ASC",
		plan.Root.Query.SQL)
	assert.Equal(t, []interface{}{int64(3)}, plan.Root.Query.Args)
	assert.Nil(t, plan.Total)
	assert.Empty(t, plan.Slots)
}

func TestCompile_FilteredToOne(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())

	t.Run("inner by default", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks { select { id assignee(where: {name: {EQ: "Ada"}}) { name } } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"INNER JOIN `users` AS `__users_1` ON `__users_1`.`id` = `__tasks_0`.`assignee_id` WHERE (`__users_1`.`name` = ?)")
		require.Len(t, plan.Joins, 1)
		assert.Equal(t, "assignee@assignee", plan.Joins[0].Path)
	})

	t.Run("optional moves the filter into the join", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks { select { id assignee(where: {name: {EQ: "Ada"}}, optional: true) { name } } } }`)
		assert.Contains(t, plan.Root.Query.SQL,
			"LEFT JOIN `users` AS `__users_1` ON `__users_1`.`id` = `__tasks_0`.`assignee_id` AND `__users_1`.`name` = ?")
		assert.NotContains(t, plan.Root.Query.SQL, "WHERE")
		assert.Equal(t, []interface{}{"Ada"}, plan.Root.Query.Args)
	})

	t.Run("aliases get separate joins", func(t *testing.T) {
		plan := compileQuery(t, sc, `{ Tasks { select { id all: assignee { name } ada: assignee(where: {name: {EQ: "Ada"}}, optional: true) { name } } } }`)
		require.Len(t, plan.Joins, 2)
		assert.Equal(t, JoinLeft, plan.Joins[0].Kind)
		assert.Equal(t, JoinLeft, plan.Joins[1].Kind)
		assert.NotEqual(t, plan.Joins[0].Alias, plan.Joins[1].Alias)
	})
}

func TestCompile_RequiredToMany(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{ Tasks { select { id variables(optional: false) { name } } } }`)

	assert.Contains(t, plan.Root.Query.SQL,
		"WHERE (EXISTS (SELECT 1 FROM `task_variables` AS `__task_variables_1` WHERE (`__task_variables_1`.`task_id` = `__tasks_0`.`id`)))")
	require.Len(t, plan.Root.Batches, 1)
}

func TestCompile_ToManyThroughJunction(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	plan := compileQuery(t, sc, `{ Tasks { select { id tags { label } } } }`)

	require.Len(t, plan.Root.Batches, 1)
	query, err := plan.Root.Batches[0].SQL([]ParentTuple{{Values: []any{int64(7)}}})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `__tags_1`.`label` AS __c0, `__tags_1`.`id` AS __c1, `__task_tags_2`.`task_id` AS __batch_parent_id "+
			"FROM `tags` AS `__tags_1` INNER JOIN `task_tags` AS `__task_tags_2` ON `__task_tags_2`.`tag_id` = `__tags_1`.`id` "+
			"WHERE `__task_tags_2`.`task_id` IN (?) ORDER BY __batch_parent_id, __c1 ASC",
		query.SQL)
	assert.Equal(t, []interface{}{int64(7)}, query.Args)
}

func TestCompile_Limits(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	req := mustParse(t, sc, `{ Tasks { select { id assignee { name } } } }`)

	_, err := Compile(context.Background(), sc, req, WithLimits(PlanLimits{MaxDepth: 1}))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "query exceeds maximum depth of 1 (depth: 2)")

	plan, err := Compile(context.Background(), sc, req, WithLimits(PlanLimits{MaxDepth: 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Cost.Depth)
}

func TestCompile_UnknownSelection(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())
	_, err := parseQuery(t, sc, `{ Tasks { select { id nope } } }`, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
