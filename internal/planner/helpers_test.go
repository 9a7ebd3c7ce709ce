package planner

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/introspection"
	"entitygraph/internal/scalars"
	"entitygraph/internal/schema"
	"entitygraph/internal/testutil"
)

func taskContext(t *testing.T, opts schema.Options) *schema.Context {
	t.Helper()
	return schema.NewContext(testutil.TaskGraph(t), scalars.NewRegistry(), opts, nil)
}

func entity(t *testing.T, sc *schema.Context, name string) *introspection.EntityDescriptor {
	t.Helper()
	e, err := sc.Graph.Describe(name)
	require.NoError(t, err)
	return e
}

// parseQuery parses a document and lowers its first root field.
func parseQuery(t *testing.T, sc *schema.Context, query string, vars map[string]interface{}) (*Request, error) {
	t.Helper()
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	require.NoError(t, err)

	fragments := map[string]ast.Definition{}
	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			op = d
		}
	}
	require.NotNil(t, op)
	field, ok := op.SelectionSet.Selections[0].(*ast.Field)
	require.True(t, ok)

	var (
		target *introspection.EntityDescriptor
		single bool
	)
	for _, e := range sc.Graph.DescribeAll() {
		switch field.Name.Value {
		case e.PluralName:
			target = e
		case e.Name:
			target, single = e, true
		}
	}
	require.NotNil(t, target, "no entity for %s", field.Name.Value)
	return ParseRequest(target, single, ParseInput{Field: field, Fragments: fragments, Variables: vars})
}

func mustParse(t *testing.T, sc *schema.Context, query string) *Request {
	t.Helper()
	req, err := parseQuery(t, sc, query, nil)
	require.NoError(t, err)
	return req
}

func compileQuery(t *testing.T, sc *schema.Context, query string, opts ...Option) *QueryPlan {
	t.Helper()
	plan, err := Compile(context.Background(), sc, mustParse(t, sc, query), opts...)
	require.NoError(t, err)
	return plan
}

// selectIDs builds a request selecting only identifiers of entity.
func selectIDs(e *introspection.EntityDescriptor, where *WhereNode) *Request {
	return &Request{
		Entity: e,
		Where:  where,
		Select: []*SelectionNode{{Field: schema.FieldSelect, Children: []*SelectionNode{{Field: "id"}}}},
	}
}
