// Package testutil provides the shared task model used by package tests:
// a YAML entity model and a seeded SQLite database matching it.
package testutil

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/introspection"
)

// TaskModelYAML describes users, tasks, task variables and tags.
//
//go:embed tasks.yaml
var TaskModelYAML string

// TaskSchemaSQL creates and seeds the tables described by TaskModelYAML.
//
//go:embed tasks.sql
var TaskSchemaSQL string

// TaskGraph builds the descriptor graph for the task model.
func TaskGraph(t testing.TB) *introspection.Graph {
	t.Helper()
	provider, err := introspection.ParseModelFile([]byte(TaskModelYAML))
	require.NoError(t, err)
	graph, err := introspection.Build(context.Background(), provider)
	require.NoError(t, err)
	return graph
}

// OpenTaskDB returns a seeded SQLite database in a temp dir. The test is
// skipped when the sqlite3 driver is unusable, e.g. in a build without cgo.
func OpenTaskDB(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.db")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(TaskSchemaSQL)
	require.NoError(t, err)
	return db
}
