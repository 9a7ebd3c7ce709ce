// Package serverapp wires configuration, observability, the database and the
// query engine into a runnable HTTP server.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"entitygraph/internal/config"
	"entitygraph/internal/logging"
	"entitygraph/internal/observability"
	"entitygraph/internal/planner"
	"entitygraph/internal/resolver"
)

// App owns the runtime resources of the entitygraph server.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	databaseSource    string

	meterProvider  *observability.MeterProvider
	graphqlMetrics *observability.GraphQLMetrics
	tracerProvider *observability.TracerProvider

	db        *sql.DB
	planCache *planner.PlanCache
	engine    *resolver.Engine

	handler    http.Handler
	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App for cfg. Resources are acquired by Init.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, databaseSource, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		databaseSource:    databaseSource,
	}, nil
}

// AttachLoggerProvider registers the OTLP logger provider so Shutdown
// flushes it last.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
