package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"entitygraph/internal/sqlutil"
)

// ErrScopeClosed is returned by a RequestScope used after Close.
var ErrScopeClosed = errors.New("request scope closed")

// RequestScope hands out the connections of one request. A connection is
// acquired lazily for each concurrent query, reused once its rows are closed,
// and returned to the pool when the scope closes.
type RequestScope struct {
	db           *sql.DB
	databaseName string

	mu     sync.Mutex
	idle   []*sql.Conn
	all    []*sql.Conn
	opened int
	closed bool
}

// NewRequestScope creates a scope over db. A non-empty databaseName is
// selected on every connection the scope acquires.
func NewRequestScope(db *sql.DB, databaseName string) *RequestScope {
	return &RequestScope{db: db, databaseName: databaseName}
}

func (s *RequestScope) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		s.release(conn)
		return nil, err
	}
	return &scopedRows{Rows: rows, release: func() { s.release(conn) }}, nil
}

func (s *RequestScope) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(conn)
	return conn.ExecContext(ctx, query, args...)
}

// Opened returns the number of connections the scope has acquired over its
// lifetime, including those already released by Close.
func (s *RequestScope) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Close returns every acquired connection to the pool.
func (s *RequestScope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.all
	s.all, s.idle = nil, nil
	s.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *RequestScope) acquire(ctx context.Context) (*sql.Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrScopeClosed
	}
	if n := len(s.idle); n > 0 {
		conn := s.idle[n-1]
		s.idle = s.idle[:n-1]
		s.mu.Unlock()
		return conn, nil
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil, sql.ErrConnDone
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if err := s.useDatabase(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return nil, ErrScopeClosed
	}
	s.all = append(s.all, conn)
	s.opened++
	return conn, nil
}

func (s *RequestScope) release(conn *sql.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.idle = append(s.idle, conn)
}

func (s *RequestScope) useDatabase(ctx context.Context, conn *sql.Conn) error {
	if s.databaseName == "" {
		return nil
	}
	useSQL := fmt.Sprintf("USE %s", sqlutil.QuoteIdentifier(s.databaseName))
	if _, err := conn.ExecContext(ctx, useSQL); err != nil {
		return fmt.Errorf("failed to select database %s: %w", s.databaseName, err)
	}
	return nil
}

type scopedRows struct {
	*sql.Rows
	once    sync.Once
	release func()
}

func (r *scopedRows) Close() error {
	defer r.once.Do(r.release)
	return r.Rows.Close()
}

type scopeKey struct{}

// WithScope stores a request scope in the context.
func WithScope(ctx context.Context, scope *RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the request scope stored in ctx, if any.
func ScopeFromContext(ctx context.Context) *RequestScope {
	scope, _ := ctx.Value(scopeKey{}).(*RequestScope)
	return scope
}
