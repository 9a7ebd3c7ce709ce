package middleware

import (
	"database/sql"
	"net/http"
	"time"

	"entitygraph/internal/dbexec"
	"entitygraph/internal/logging"
)

// RequestScopeMiddleware gives each request its own dbexec.RequestScope.
// The statements of one request share the scope's connections, and the
// connections go back to the pool when the request finishes.
func RequestScopeMiddleware(db *sql.DB, databaseName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := dbexec.NewRequestScope(db, databaseName)
			defer func() {
				if err := scope.Close(); err != nil {
					logging.FromContext(r.Context()).Warn("failed to release request connections", "error", err)
				}
			}()
			next.ServeHTTP(w, r.WithContext(dbexec.WithScope(r.Context(), scope)))
		})
	}
}

// TimeoutMiddleware bounds request handling by timeout. Statements observe
// the deadline through the request context. A zero timeout disables it.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.TimeoutHandler(next, timeout, `{"errors":[{"message":"request timed out"}]}`)
	}
}
