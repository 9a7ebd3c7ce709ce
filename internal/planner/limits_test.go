package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/schema"
)

func TestEstimateCost(t *testing.T) {
	sc := taskContext(t, schema.DefaultOptions())

	t.Run("nested pages multiply rows", func(t *testing.T) {
		req := mustParse(t, sc, `{
			Tasks(page: {limit: 2}) {
				select { variables(page: {limit: 3}) { task { tags(page: {limit: 4}) { id } } } }
			}
		}`)
		cost := EstimateCost(req, 0, DefaultListLimit)
		assert.Equal(t, PlanCost{Depth: 4, Complexity: 40, Rows: 32, Statements: 3}, cost)
	})

	t.Run("unbounded lists use the fallback", func(t *testing.T) {
		req := mustParse(t, sc, `{ Tasks { select { id name } total } }`)
		cost := EstimateCost(req, 0, 10)
		assert.Equal(t, PlanCost{Depth: 1, Complexity: 30, Rows: 10, Statements: 2}, cost)

		cost = EstimateCost(req, 5, 10)
		assert.Equal(t, 5, cost.Rows)
	})

	t.Run("lookups read one row", func(t *testing.T) {
		req := mustParse(t, sc, `{ Task(id: 1) { id address { city zip } } }`)
		cost := EstimateCost(req, 0, DefaultListLimit)
		assert.Equal(t, PlanCost{Depth: 1, Complexity: 4, Rows: 1, Statements: 1}, cost)
	})

	t.Run("aggregate slots are statements", func(t *testing.T) {
		req := mustParse(t, sc, `{ Tasks { aggregate { count group { by(field: status) count } } } }`)
		cost := EstimateCost(req, 0, DefaultListLimit)
		assert.Equal(t, 2, cost.Statements)
	})
}

func TestValidateLimits(t *testing.T) {
	cost := PlanCost{Depth: 3, Complexity: 50, Rows: 200, Statements: 4}

	require.NoError(t, validateLimits(cost, PlanLimits{}))
	require.NoError(t, validateLimits(cost, PlanLimits{MaxDepth: 3, MaxComplexity: 50, MaxRows: 200, MaxStatements: 4}))

	cases := []struct {
		limits PlanLimits
		msg    string
	}{
		{PlanLimits{MaxDepth: 2}, "query exceeds maximum depth of 2 (depth: 3)"},
		{PlanLimits{MaxComplexity: 49}, "query exceeds maximum complexity of 49 (complexity: 50)"},
		{PlanLimits{MaxRows: 100}, "query exceeds maximum rows of 100 (estimated: 200)"},
		{PlanLimits{MaxStatements: 3}, "query exceeds maximum statement count of 3 (estimated: 4)"},
	}
	for _, tc := range cases {
		err := validateLimits(cost, tc.limits)
		require.Error(t, err)
		assert.EqualError(t, err, tc.msg)
		assert.True(t, IsValidation(err))
	}
}
