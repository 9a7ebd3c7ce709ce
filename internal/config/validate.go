package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and non-fatal
// warnings. It fills Database.Database with the effective database name.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Metadata.validate(c.Database.DriverName(), result)
	c.validateSchema(result)
	c.Planner.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.DriverName() {
	case DriverMySQL:
		d.validateMySQL(result)
	case DriverSQLite:
		if strings.TrimSpace(d.Path) == "" {
			result.fail("database.path", "path is required for the sqlite3 driver", "set database.path to the database file")
		}
		if d.ConnectionString != "" {
			result.warn("database.dsn", "dsn is ignored by the sqlite3 driver", "use database.path")
		}
	default:
		result.fail("database.driver", fmt.Sprintf("unsupported driver %q", d.Driver), "valid values are: mysql, sqlite3")
	}

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval", "connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (d *DatabaseConfig) validateMySQL(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}
	d.TLS.validate(result)

	name, _, err := d.EffectiveDatabaseName()
	if err != nil {
		field := "database.database"
		if strings.HasPrefix(err.Error(), "database.dsn") {
			field = "database.dsn"
		}
		result.fail(field, err.Error(), "set database.database or include a /database in database.dsn")
		return
	}
	d.Database = name
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	switch t.Mode {
	case "", "off", "skip-verify", "verify-ca", "verify-full":
	default:
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		result.fail("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (m *MetadataConfig) validate(driver string, result *ValidationResult) {
	switch m.Source {
	case MetadataInformationSchema:
		if driver == DriverSQLite {
			result.fail("metadata.source", "information_schema is not available for the sqlite3 driver",
				"set metadata.source to model_file")
		}
	case MetadataModelFile:
		if strings.TrimSpace(m.ModelFile) == "" {
			result.fail("metadata.model_file", "model_file is required when metadata.source is model_file", "")
			return
		}
		if _, err := os.Stat(m.ModelFile); err != nil {
			result.fail("metadata.model_file", fmt.Sprintf("model file is not readable: %v", err), "")
		}
	default:
		result.fail("metadata.source", fmt.Sprintf("invalid metadata source %q", m.Source),
			"valid values are: information_schema, model_file")
	}
}

func (c *Config) validateSchema(result *ValidationResult) {
	if c.Schema.DefaultLimit < 0 {
		result.fail("schema.default_limit", "default_limit cannot be negative", "")
	}
	if c.Schema.UseDistinctParameter && !c.Schema.DefaultDistinct {
		result.warn("schema.use_distinct_parameter", "distinct argument defaults to false on every query",
			"enable schema.default_distinct to make distinct the default")
	}
	if c.Planner.MaxRows > 0 && c.Schema.DefaultLimit == 0 {
		result.warn("schema.default_limit", "unpaged root lists are estimated at the planner fallback size",
			"set schema.default_limit so max_rows applies to real limits")
	}
}

func (p *PlannerConfig) validate(result *ValidationResult) {
	for _, f := range []struct {
		field string
		value int
	}{
		{"planner.max_depth", p.MaxDepth},
		{"planner.max_complexity", p.MaxComplexity},
		{"planner.max_rows", p.MaxRows},
		{"planner.max_statements", p.MaxStatements},
		{"planner.plan_cache_size", p.PlanCacheSize},
	} {
		if f.value < 0 {
			result.fail(f.field, "value cannot be negative", "use 0 to disable")
		}
	}
	if p.BatchConcurrency < 1 {
		result.fail("planner.batch_concurrency", "batch_concurrency must be at least 1", "")
	}
	if p.BatchChunkSize < 1 {
		result.fail("planner.batch_chunk_size", "batch_chunk_size must be at least 1", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.RequestTimeout < 0 {
		result.fail("server.request_timeout", "request_timeout cannot be negative", "")
	}
	if s.HealthCheckTimeout <= 0 {
		result.fail("server.health_check_timeout", "health_check_timeout must be greater than 0", "")
	}
	if s.WriteTimeout > 0 && s.RequestTimeout > s.WriteTimeout {
		result.warn("server.request_timeout", "request_timeout exceeds write_timeout",
			"responses of long requests will be cut off by the server")
	}

	if !s.CORSEnabled {
		return
	}
	if len(s.CORSAllowedOrigins) == 0 {
		result.fail("server.cors_allowed_origins", "at least one origin is required when CORS is enabled", "use * to allow any origin")
	}
	for _, origin := range s.CORSAllowedOrigins {
		if origin == "*" && s.CORSAllowCredentials {
			result.fail("server.cors_allow_credentials", "credentials cannot be allowed for wildcard origins",
				"list explicit origins or disable cors_allow_credentials")
		}
	}
	if s.CORSMaxAge < 0 {
		result.fail("server.cors_max_age", "cors_max_age cannot be negative", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0.0 and 1.0", "")
	}
	if o.SQLCommenterEnabled && !o.TracingEnabled {
		result.warn("observability.sqlcommenter_enabled", "sqlcommenter requires tracing", "enable observability.tracing_enabled")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc":
	case "http/protobuf":
		if !validOTLPEndpoint(o.Endpoint) {
			result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				"use host:port or a full URL")
		}
	default:
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
