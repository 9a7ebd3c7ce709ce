package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"entitygraph/internal/config"
	"entitygraph/internal/logging"
)

// maxRetryInterval caps the delay between connection attempts.
const maxRetryInterval = 30 * time.Second

type statsRegistration interface{ Unregister() error }

func dbSystemAttribute(driver string) attribute.KeyValue {
	if driver == config.DriverSQLite {
		return semconv.DBSystemSqlite
	}
	return semconv.DBSystemMySQL
}

// connectDB opens the configured database, instrumented with otelsql when
// metrics or tracing are enabled. The pool is not contacted yet.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, statsRegistration, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	driver := cfg.Database.DriverName()
	dsn := cfg.Database.DSN()

	obs := cfg.Observability
	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		return db, nil, err
	}

	system := dbSystemAttribute(driver)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		if obs.SQLCommenterEnabled {
			opts = append(opts, otelsql.WithSQLCommenter(true))
		}
	} else if obs.SQLCommenterEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled; skipping")
	}

	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var stats statsRegistration
	if obs.MetricsEnabled {
		stats, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			stats = nil
		}
	}
	logger.Info("database instrumentation enabled",
		slog.String("driver", driver),
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
		slog.Bool("sqlcommenter", obs.SQLCommenterEnabled && obs.TracingEnabled),
	)
	return db, stats, nil
}

// configureDatabase sizes the pool and waits until the database answers.
func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	pool := cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg.Database, logger, db); err != nil {
		return err
	}
	logger.Info("connected to database",
		slog.String("driver", cfg.Database.DriverName()),
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings db with exponential backoff until it answers or
// ConnectionTimeout elapses. A zero timeout pings once.
func waitForDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, db *sql.DB) error {
	if cfg.ConnectionTimeout <= 0 {
		return db.PingContext(ctx)
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.ConnectionRetryInterval > 0 {
		policy.InitialInterval = cfg.ConnectionRetryInterval
	}
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = cfg.ConnectionTimeout

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return fmt.Errorf("database not available after %v: %w", cfg.ConnectionTimeout, err)
	}
	if attempt > 1 {
		logger.Info("database connection established", slog.Int("attempts", attempt))
	}
	return nil
}
