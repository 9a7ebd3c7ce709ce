package config

import (
	"time"

	"entitygraph/internal/naming"
	"entitygraph/internal/planner"
	"entitygraph/internal/schema"
	"entitygraph/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Schema        schema.Options      `mapstructure:"schema"`
	Planner       PlannerConfig       `mapstructure:"planner"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// Supported database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Supported metadata sources.
const (
	MetadataInformationSchema = "information_schema"
	MetadataModelFile         = "model_file"
)

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for MySQL connections.
type DatabaseTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca or verify-full.
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver selects the database/sql driver: mysql or sqlite3.
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete go-sql-driver/mysql DSN. When set it
	// overrides the discrete fields. Configured via "dsn" or EGQL_DATABASE_DSN.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile holds the DSN. "@-" reads it from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	// Path is the database file for the sqlite3 driver.
	Path string `mapstructure:"path"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout bounds the startup wait for the database. Zero
	// means a single attempt.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// MetadataConfig selects where entity metadata comes from.
type MetadataConfig struct {
	// Source is information_schema or model_file.
	Source string `mapstructure:"source"`
	// ModelFile is the YAML model read when Source is model_file.
	ModelFile string `mapstructure:"model_file"`
	// Filters hide tables and columns from either source.
	Filters schemafilter.Config `mapstructure:"filters"`
}

// PlannerConfig holds query planning limits and execution tuning.
type PlannerConfig struct {
	MaxDepth      int `mapstructure:"max_depth"`
	MaxComplexity int `mapstructure:"max_complexity"`
	MaxRows       int `mapstructure:"max_rows"`
	MaxStatements int `mapstructure:"max_statements"`
	// PlanCacheSize is the number of compiled plans kept. Zero disables
	// the cache.
	PlanCacheSize    int `mapstructure:"plan_cache_size"`
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	BatchChunkSize   int `mapstructure:"batch_chunk_size"`
}

// Limits returns the plan limits, or nil when none is set.
func (p PlannerConfig) Limits() *planner.PlanLimits {
	if p.MaxDepth <= 0 && p.MaxComplexity <= 0 && p.MaxRows <= 0 && p.MaxStatements <= 0 {
		return nil
	}
	return &planner.PlanLimits{
		MaxDepth:      p.MaxDepth,
		MaxComplexity: p.MaxComplexity,
		MaxRows:       p.MaxRows,
		MaxStatements: p.MaxStatements,
	}
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	GraphiQLEnabled      bool          `mapstructure:"graphiql_enabled"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds one GraphQL request including all statements.
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	// OTLP applies to every exported signal unless overridden below.
	OTLP   OTLPConfig  `mapstructure:"otlp"`
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // grpc, http/protobuf
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // none, gzip
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesConfig returns the effective OTLP settings for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	return c.OTLP.overlay(c.Traces)
}

// LogsConfig returns the effective OTLP settings for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Logs)
}

// overlay applies the set fields of a signal override on top of c.
// Insecure is always taken from the override since false cannot be told
// apart from unset.
func (c OTLPConfig) overlay(o *OTLPConfig) OTLPConfig {
	if o == nil {
		return c
	}
	out := c
	out.Insecure = o.Insecure
	for _, pair := range []struct {
		dst *string
		src string
	}{
		{&out.Endpoint, o.Endpoint},
		{&out.Protocol, o.Protocol},
		{&out.TLSCertFile, o.TLSCertFile},
		{&out.TLSClientCertFile, o.TLSClientCertFile},
		{&out.TLSClientKeyFile, o.TLSClientKeyFile},
		{&out.Compression, o.Compression},
	} {
		if pair.src != "" {
			*pair.dst = pair.src
		}
	}
	if o.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers)+len(o.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
		for k, v := range o.Headers {
			out.Headers[k] = v
		}
	}
	if o.Timeout != 0 {
		out.Timeout = o.Timeout
	}
	if o.RetryMaxAttempts != 0 {
		out.RetryEnabled = o.RetryEnabled
		out.RetryMaxAttempts = o.RetryMaxAttempts
	}
	return out
}
