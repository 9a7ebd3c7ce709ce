package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/dbexec"
	"entitygraph/internal/scalars"
	"entitygraph/internal/schema"
	"entitygraph/internal/testutil"
)

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("scan called without advancing rows")
	}
	row := r.rows[r.idx-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan row has %d values, dest has %d", len(row), len(dest))
	}
	for i, value := range row {
		d, ok := dest[i].(*interface{})
		if !ok {
			return fmt.Errorf("unsupported scan dest %T", dest[i])
		}
		*d = value
	}
	return nil
}

func (r *fakeRows) Err() error {
	return r.err
}

func (r *fakeRows) Close() error {
	return nil
}

// fakeResponse answers every statement containing match.
type fakeResponse struct {
	match string
	rows  [][]any
	err   error
}

// fakeExecutor answers statements by substring. Statements run
// concurrently, so responses are matched by text rather than by order.
type fakeExecutor struct {
	responses []fakeResponse

	mu    sync.Mutex
	calls []string
	args  [][]any
}

func (e *fakeExecutor) QueryContext(_ context.Context, query string, args ...any) (dbexec.Rows, error) {
	e.mu.Lock()
	e.calls = append(e.calls, query)
	e.args = append(e.args, args)
	e.mu.Unlock()

	for _, r := range e.responses {
		if strings.Contains(query, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return &fakeRows{rows: r.rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (e *fakeExecutor) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}

func (e *fakeExecutor) statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func newTaskEngine(t *testing.T, executor dbexec.QueryExecutor, options ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(testutil.TaskGraph(t), scalars.NewRegistry(), schema.DefaultOptions(), executor, options...)
	require.NoError(t, err)
	return engine
}

// run executes query and returns the data as JSON with the error messages.
func run(t *testing.T, engine *Engine, query string, vars map[string]interface{}) (string, []string) {
	t.Helper()
	result := graphql.Do(graphql.Params{
		Schema:         engine.Schema(),
		RequestString:  query,
		VariableValues: vars,
		Context:        context.Background(),
	})
	var messages []string
	for _, e := range result.Errors {
		messages = append(messages, e.Message)
	}
	data, err := json.Marshal(result.Data)
	require.NoError(t, err)
	return string(data), messages
}
