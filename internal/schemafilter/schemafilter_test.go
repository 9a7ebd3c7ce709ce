package schemafilter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/introspection"
	"entitygraph/internal/testutil"
)

func taskProvider(t *testing.T) introspection.MetadataProvider {
	t.Helper()
	provider, err := introspection.ParseModelFile([]byte(testutil.TaskModelYAML))
	require.NoError(t, err)
	return provider
}

func entityNames(entities []introspection.EntityMeta) []string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Key())
	}
	return names
}

func TestProvider_AllowsAllByDefault(t *testing.T) {
	ctx := context.Background()
	inner := taskProvider(t)
	want, err := inner.ListEntities(ctx)
	require.NoError(t, err)

	got, err := Wrap(inner, Config{}).ListEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, Config{}.Empty())
}

func TestProvider_TableFilters(t *testing.T) {
	ctx := context.Background()
	p := Wrap(taskProvider(t), Config{
		AllowTables: []string{"*"},
		DenyTables:  []string{"TAG*"},
	})

	entities, err := p.ListEntities(ctx)
	require.NoError(t, err)
	names := entityNames(entities)
	assert.NotContains(t, names, "Tag")
	assert.Contains(t, names, "Task")
	assert.Contains(t, names, "Address", "embeddables are never hidden")

	relations, err := p.DescribeRelations(ctx, "Task")
	require.NoError(t, err)
	for _, r := range relations {
		assert.NotEqual(t, "Tag", r.Target)
	}
}

func TestProvider_JunctionTableDenied(t *testing.T) {
	ctx := context.Background()
	p := Wrap(taskProvider(t), Config{DenyTables: []string{"task_tags"}})

	graph, err := introspection.Build(ctx, p)
	require.NoError(t, err)

	task, err := graph.Describe("Task")
	require.NoError(t, err)
	_, ok := task.Field("tags")
	assert.False(t, ok)

	tag, err := graph.Describe("Tag")
	require.NoError(t, err)
	_, ok = tag.Field("tasks")
	assert.False(t, ok, "inverse side goes with its owner")
}

func TestProvider_ColumnFilters(t *testing.T) {
	ctx := context.Background()
	p := Wrap(taskProvider(t), Config{
		AllowColumns: map[string][]string{"*": {"*"}},
		DenyColumns: map[string][]string{
			"tasks": {"budget", "assignee_*"},
			"*":     {"id"},
		},
	})

	graph, err := introspection.Build(ctx, p)
	require.NoError(t, err)

	task, err := graph.Describe("Task")
	require.NoError(t, err)
	_, ok := task.Field("budget")
	assert.False(t, ok)
	_, ok = task.Field("id")
	assert.True(t, ok, "identifiers are never hidden")
	_, ok = task.Field("address")
	assert.True(t, ok)
	_, ok = task.Field("assignee")
	assert.False(t, ok, "association through a denied column")

	user, err := graph.Describe("User")
	require.NoError(t, err)
	_, ok = user.Field("tasks")
	assert.False(t, ok)
	_, ok = user.Field("email")
	assert.True(t, ok)
}

func TestProvider_AllowColumnsPerTable(t *testing.T) {
	ctx := context.Background()
	p := Wrap(taskProvider(t), Config{
		AllowColumns: map[string][]string{"users": {"name"}},
	})

	fields, err := p.DescribeFields(ctx, "User")
	require.NoError(t, err)
	var names []string
	for _, f := range fields {
		names = append(names, f.Column)
	}
	assert.ElementsMatch(t, []string{"id", "name"}, names)

	fields, err = p.DescribeFields(ctx, "TaskVariable")
	require.NoError(t, err)
	assert.Len(t, fields, 3, "tables without allow patterns keep every column")
}

type failingProvider struct {
	introspection.MetadataProvider
}

func (failingProvider) ListEntities(context.Context) ([]introspection.EntityMeta, error) {
	return nil, errors.New("boom")
}

func TestProvider_PropagatesErrors(t *testing.T) {
	p := Wrap(failingProvider{}, Config{})
	_, err := p.DescribeFields(context.Background(), "Task")
	require.EqualError(t, err, "boom")
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		value    string
		patterns []string
		want     bool
	}{
		{"users", []string{"users"}, true},
		{"Users", []string{"USERS"}, true},
		{"audit_log", []string{"audit_*"}, true},
		{"orders", []string{"", "user?"}, false},
		{"orders", []string{"["}, false},
		{"orders", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesAny(tt.value, tt.patterns), "%s %v", tt.value, tt.patterns)
	}
}
