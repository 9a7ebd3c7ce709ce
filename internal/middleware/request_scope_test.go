package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/dbexec"
)

func TestRequestScopeMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("USE `tasks`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	var scope *dbexec.RequestScope
	handler := RequestScopeMiddleware(db, "tasks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope = dbexec.ScopeFromContext(r.Context())
		require.NotNil(t, scope)
		rows, err := dbexec.NewScopedExecutor(db).QueryContext(r.Context(), "SELECT 1")
		require.NoError(t, err)
		require.NoError(t, rows.Close())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))

	assert.Equal(t, 1, scope.Opened())
	_, err = scope.QueryContext(t.Context(), "SELECT 2")
	assert.ErrorIs(t, err, dbexec.ErrScopeClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timed out")

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline := r.Context().Deadline()
		assert.False(t, hasDeadline)
	})
	rec = httptest.NewRecorder()
	TimeoutMiddleware(0)(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
