package serverapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/config"
	"entitygraph/internal/naming"
	"entitygraph/internal/schema"
	"entitygraph/internal/schemafilter"
	"entitygraph/internal/testutil"
)

func modelFileConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testutil.TaskModelYAML), 0o600))
	return &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: "tasks.db"},
		Metadata: config.MetadataConfig{Source: config.MetadataModelFile, ModelFile: path},
		Schema:   schema.DefaultOptions(),
		Planner: config.PlannerConfig{
			MaxDepth:         5,
			PlanCacheSize:    16,
			BatchConcurrency: 2,
			BatchChunkSize:   100,
		},
		Naming: naming.DefaultConfig(),
	}
}

func TestBuildEngine_ModelFile(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	res, err := buildEngine(context.Background(), modelFileConfig(t), testLogger(), db, "main", false)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.close()) }()

	require.NotNil(t, res.cache)
	assert.Nil(t, res.registration)
	gqlSchema := res.engine.Schema()
	queryType := gqlSchema.QueryType()
	assert.Contains(t, queryType.Fields(), "Tasks")
	assert.Contains(t, queryType.Fields(), "Task")
}

func TestBuildEngine_MetadataFilters(t *testing.T) {
	cfg := modelFileConfig(t)
	cfg.Metadata.Filters = schemafilter.Config{DenyTables: []string{"tag*", "task_tags"}}

	res, err := buildEngine(context.Background(), cfg, testLogger(), nil, "", false)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.close()) }()

	gqlSchema := res.engine.Schema()
	fields := gqlSchema.QueryType().Fields()
	assert.Contains(t, fields, "Tasks")
	assert.NotContains(t, fields, "Tags")
}

func TestBuildEngine_UnknownMetadataSource(t *testing.T) {
	cfg := modelFileConfig(t)
	cfg.Metadata.Source = "ldap"
	_, err := buildEngine(context.Background(), cfg, testLogger(), nil, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported metadata source "ldap"`)
}

func TestGraphQLHandler_ServesQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := modelFileConfig(t)
	res, err := buildEngine(context.Background(), cfg, testLogger(), db, "main", false)
	require.NoError(t, err)
	defer func() { _ = res.close() }()

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(6)))

	h := buildGraphQLHandler(cfg, testLogger(), res.engine.Schema(), db, "main", nil)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ Tasks { total } }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"Tasks":{"total":6}}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.NoError(t, mock.ExpectationsWereMet())
}
