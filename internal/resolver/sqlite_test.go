package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/dbexec"
	"entitygraph/internal/testutil"
)

func newSQLiteEngine(t *testing.T, options ...Option) *Engine {
	t.Helper()
	db := testutil.OpenTaskDB(t)
	return newTaskEngine(t, dbexec.NewStandardExecutor(db), options...)
}

func TestSQLite_BetweenDates(t *testing.T) {
	engine := newSQLiteEngine(t)

	data, errs := run(t, engine, `{
		Tasks(where: {dueDate: {BETWEEN: ["2019-08-05", "2019-08-05"]}}) {
			select { id dueDate }
		}
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [{"id": 5, "dueDate": "2019-08-05"}]}}`, data)
}

func TestSQLite_Pages(t *testing.T) {
	engine := newSQLiteEngine(t)
	query := `query($start: PositiveInt) {
		Tasks(page: {start: $start, limit: 2}) { total pages select { id } }
	}`

	data, errs := run(t, engine, query, map[string]interface{}{"start": 1})
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"total": 6, "pages": 3, "select": [{"id": 1}, {"id": 2}]}}`, data)

	data, errs = run(t, engine, query, map[string]interface{}{"start": 3})
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"total": 6, "pages": 3, "select": [{"id": 5}, {"id": 6}]}}`, data)
}

func TestSQLite_AggregateCount(t *testing.T) {
	engine := newSQLiteEngine(t)

	data, errs := run(t, engine, `{
		TaskVariables(where: {name: {EQ: "variable5"}}) { aggregate { count } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"TaskVariables": {"aggregate": {"count": 2}}}`, data)
}

func TestSQLite_NestedBatches(t *testing.T) {
	engine := newSQLiteEngine(t, WithChunkSize(2))

	data, errs := run(t, engine, `{
		Tasks(where: {id: {IN: [1, 3, 5]}}) {
			select {
				id
				assignee { name }
				tags { label tasks { id } }
				variables(page: {limit: 1}) { name }
			}
		}
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [
		{"id": 1, "assignee": {"name": "Ada"},
		 "tags": [{"label": "urgent", "tasks": [{"id": 1}, {"id": 5}]}, {"label": "backend", "tasks": [{"id": 1}, {"id": 2}, {"id": 3}]}],
		 "variables": [{"name": "variable1"}]},
		{"id": 3, "assignee": {"name": "Grace"},
		 "tags": [{"label": "backend", "tasks": [{"id": 1}, {"id": 2}, {"id": 3}]}],
		 "variables": [{"name": "variable3"}]},
		{"id": 5, "assignee": {"name": "Linus"},
		 "tags": [{"label": "urgent", "tasks": [{"id": 1}, {"id": 5}]}],
		 "variables": [{"name": "variable5"}]}
	]}}`, data)
}

func TestSQLite_ExistsFilter(t *testing.T) {
	engine := newSQLiteEngine(t)

	data, errs := run(t, engine, `{
		Tasks(where: {EXISTS: {variables: {name: {EQ: "variable5"}}}}) { select { id } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [{"id": 5}]}}`, data)

	data, errs = run(t, engine, `{
		Tasks(where: {NOT_EXISTS: {tags: {label: {EQ: "backend"}}}}) { select { id } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [{"id": 4}, {"id": 5}, {"id": 6}]}}`, data)
}

func TestSQLite_GroupByAssociation(t *testing.T) {
	engine := newSQLiteEngine(t)

	data, errs := run(t, engine, `{
		TaskVariables { aggregate { by { task { s: by(field: status, orderBy: ASC) n: count } } } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"TaskVariables": {"aggregate": {"by": {"task": [
		{"s": "CLOSED", "n": 2},
		{"s": "OPEN", "n": 3}
	]}}}}`, data)
}

func TestSQLite_OperatorPartitions(t *testing.T) {
	engine := newSQLiteEngine(t)

	// Complementary operators split the rows between them; task 4 has no
	// due date and always falls on the negated side.
	tests := []struct {
		name     string
		match    string
		rest     string
		matchIDs string
		restIDs  string
	}{
		{
			name:     "EQ and NE",
			match:    `{dueDate: {EQ: "2019-08-03"}}`,
			rest:     `{dueDate: {NE: "2019-08-03"}}`,
			matchIDs: `[{"id": 3}]`,
			restIDs:  `[{"id": 1}, {"id": 2}, {"id": 4}, {"id": 5}, {"id": 6}]`,
		},
		{
			name:     "BETWEEN and NOT_BETWEEN",
			match:    `{dueDate: {BETWEEN: ["2019-08-02", "2019-08-05"]}}`,
			rest:     `{dueDate: {NOT_BETWEEN: ["2019-08-02", "2019-08-05"]}}`,
			matchIDs: `[{"id": 2}, {"id": 3}, {"id": 5}]`,
			restIDs:  `[{"id": 1}, {"id": 4}, {"id": 6}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, errs := run(t, engine, `{ Tasks(where: `+tt.match+`) { select { id } } }`, nil)
			require.Empty(t, errs)
			assert.JSONEq(t, `{"Tasks": {"select": `+tt.matchIDs+`}}`, data)

			data, errs = run(t, engine, `{ Tasks(where: `+tt.rest+`) { select { id } } }`, nil)
			require.Empty(t, errs)
			assert.JSONEq(t, `{"Tasks": {"select": `+tt.restIDs+`}}`, data)
		})
	}
}

func TestSQLite_WhereNarrowsSelectedToMany(t *testing.T) {
	engine := newSQLiteEngine(t)

	data, errs := run(t, engine, `{
		Tasks(where: {variables: {value: {EQ: "x"}}}) { total select { id variables { value } } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"total": 1, "select": [{"id": 5, "variables": [{"value": "x"}]}]}}`, data)

	// Both variables of task 5 match; the parent still appears once.
	data, errs = run(t, engine, `{
		Tasks(where: {variables: {name: {EQ: "variable5"}}}) { select { id variables { value } } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [{"id": 5, "variables": [{"value": "x"}, {"value": "y"}]}]}}`, data)

	// EXISTS selects the parent without narrowing its children.
	data, errs = run(t, engine, `{
		Tasks(where: {EXISTS: {variables: {value: {EQ: "x"}}}}) { select { id variables { value } } }
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"Tasks": {"select": [{"id": 5, "variables": [{"value": "x"}, {"value": "y"}]}]}}`, data)
}
