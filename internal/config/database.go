package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name custom TLS configs are registered under with the
// MySQL driver.
const tlsConfigName = "entitygraph-custom"

// DriverName returns the database/sql driver name.
func (d *DatabaseConfig) DriverName() string {
	if d.Driver == "" {
		return DriverMySQL
	}
	return d.Driver
}

// DSN returns the data source name for the configured driver.
func (d *DatabaseConfig) DSN() string {
	if d.DriverName() == DriverSQLite {
		return d.sqliteDSN()
	}
	return d.mysqlDSN()
}

// sqliteDSN opens the file read-only; the service never writes.
func (d *DatabaseConfig) sqliteDSN() string {
	if strings.HasPrefix(d.Path, "file:") {
		return d.Path
	}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_foreign_keys", "on")
	return "file:" + d.Path + "?" + q.Encode()
}

// mysqlDSN uses ConnectionString when set and builds one from the discrete
// fields otherwise. parseTime is always set so temporal columns scan as
// time.Time; the driver defaults loc to UTC.
func (d *DatabaseConfig) mysqlDSN() string {
	var cfg *mysql.Config
	if strings.TrimSpace(d.ConnectionString) != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			// Validate reports the parse error; keep the raw string.
			return d.ConnectionString
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	if param := d.tlsParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN()
}

// EffectiveDatabaseName returns the database introspected for entity
// metadata and where it was configured.
func (d *DatabaseConfig) EffectiveDatabaseName() (name string, source string, err error) {
	if d.DriverName() == DriverSQLite {
		return "main", "database.path", nil
	}
	configured := strings.TrimSpace(d.Database)
	var fromDSN string
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		fromDSN = strings.TrimSpace(parsed.DBName)
	}

	switch {
	case configured != "" && fromDSN != "" && configured != fromDSN:
		return "", "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", configured, fromDSN)
	case configured != "":
		return configured, "database.database", nil
	case fromDSN != "":
		return fromDSN, "dsn", nil
	}
	return "", "", fmt.Errorf("no effective database name configured: set database.database or include /<database> in database.dsn")
}

func (d *DatabaseConfig) tlsParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It must run before the connection opens and is a no-op for modes that
// need no custom config.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.DriverName() != DriverMySQL {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if d.TLS.CAFile != "" {
		pem, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case d.TLS.CertFile != "" && d.TLS.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case d.TLS.CertFile != "" || d.TLS.KeyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}
