package serverapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"entitygraph/internal/config"
	"entitygraph/internal/logging"
	"entitygraph/internal/middleware"
	"entitygraph/internal/observability"
)

const (
	graphqlPath = "/graphql"
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// buildGraphQLHandler wraps the graphql-go handler in the request pipeline:
//
//	logging -> analysis -> tracing -> metrics -> timeout -> request scope -> graphql
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, schema graphql.Schema, db *sql.DB, databaseName string, metrics *observability.GraphQLMetrics) http.Handler {
	var h http.Handler = handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	// sqlite has no USE statement.
	if cfg.Database.DriverName() == config.DriverSQLite {
		databaseName = ""
	}
	h = middleware.RequestScopeMiddleware(db, databaseName)(h)
	h = middleware.TimeoutMiddleware(cfg.Server.RequestTimeout)(h)
	if metrics != nil {
		h = middleware.GraphQLMetricsMiddleware(metrics)(h)
	}
	h = middleware.GraphQLTracingMiddleware()(h)
	h = middleware.GraphQLRequestAnalysisMiddleware()(h)
	return middleware.LoggingMiddleware(logger)(h)
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, metricsEnabled bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, graphqlPath, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))

	if metricsEnabled {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	return mux
}

// wrapHTTPHandler adds the outer HTTP instrumentation and CORS.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, h http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		h = otelhttp.NewHandler(h, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Debug("HTTP instrumentation enabled")
	}

	return middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		ExposeHeaders:    cfg.Server.CORSExposeHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(h)
}

// httpRootSpanName names server spans by method and known route so span
// names stay low-cardinality.
func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", graphqlPath, healthPath, metricsPath:
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, h http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		attrs := []any{
			slog.String("address", srv.Addr),
			slog.String("graphql_endpoint", graphqlPath),
			slog.String("health_endpoint", healthPath),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.Int("planner_max_depth", cfg.Planner.MaxDepth),
		}
		if cfg.Observability.MetricsEnabled {
			attrs = append(attrs, slog.String("metrics_endpoint", metricsPath))
		}
		logger.Info("server starting", attrs...)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler reports whether the database answers a ping within timeout.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
