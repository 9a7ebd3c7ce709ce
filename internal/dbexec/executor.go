// Package dbexec provides database query execution abstractions.
// It supports direct execution against a pool and request-scoped execution
// that keeps the connections of one request together.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap in scoped behavior.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// ScopedExecutor runs queries on the RequestScope stored in the context and
// falls back to the database pool when there is none.
type ScopedExecutor struct {
	fallback QueryExecutor
}

// NewScopedExecutor creates an executor that prefers the request scope.
func NewScopedExecutor(db *sql.DB) *ScopedExecutor {
	return &ScopedExecutor{fallback: NewStandardExecutor(db)}
}

func (e *ScopedExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if scope := ScopeFromContext(ctx); scope != nil {
		return scope.QueryContext(ctx, query, args...)
	}
	return e.fallback.QueryContext(ctx, query, args...)
}

func (e *ScopedExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if scope := ScopeFromContext(ctx); scope != nil {
		return scope.ExecContext(ctx, query, args...)
	}
	return e.fallback.ExecContext(ctx, query, args...)
}
