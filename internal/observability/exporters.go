package observability

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

// Retry schedule shared by all OTLP exporters.
const (
	retryInitialInterval = time.Second
	retryMaxInterval     = 5 * time.Second
	retryMaxElapsed      = 30 * time.Second
)

// exporterSettings is the protocol-neutral form of an OTLPExporterConfig.
type exporterSettings struct {
	protocol string
	endpoint string
	url      bool
	tls      *tls.Config // nil when insecure
	headers  map[string]string
	timeout  time.Duration
	gzip     bool
	retry    bool
}

func resolveExporterSettings(cfg OTLPExporterConfig) (exporterSettings, error) {
	s := exporterSettings{
		endpoint: cfg.Endpoint,
		url:      isHTTPEndpointURL(cfg.Endpoint),
		headers:  cfg.Headers,
		timeout:  cfg.Timeout,
		gzip:     cfg.Compression == "gzip",
		retry:    cfg.RetryEnabled && cfg.RetryMaxAttempts > 0,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "", protocolGRPC:
		s.protocol = protocolGRPC
	case "http", protocolHTTP:
		s.protocol = protocolHTTP
	default:
		return s, fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", cfg.Protocol)
	}
	if !cfg.Insecure {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return s, err
		}
		s.tls = tlsConfig
	}
	return s, nil
}

func newSpanExporter(ctx context.Context, cfg OTLPExporterConfig) (sdktrace.SpanExporter, error) {
	s, err := resolveExporterSettings(cfg)
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	if s.protocol == protocolGRPC {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
		if s.tls == nil {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(s.tls)))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(s.headers))
		}
		if s.timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		if s.retry {
			opts = append(opts, otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  retryMaxElapsed,
			}))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	} else {
		var opts []otlptracehttp.Option
		if s.url {
			opts = append(opts, otlptracehttp.WithEndpointURL(s.endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(s.endpoint))
		}
		if s.tls == nil {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(s.tls))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(s.headers))
		}
		if s.timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if s.retry {
			opts = append(opts, otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  retryMaxElapsed,
			}))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}

func newLogExporter(ctx context.Context, cfg OTLPExporterConfig) (log.Exporter, error) {
	s, err := resolveExporterSettings(cfg)
	if err != nil {
		return nil, err
	}

	var exporter log.Exporter
	if s.protocol == protocolGRPC {
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(s.endpoint)}
		if s.tls == nil {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else {
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(s.tls)))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(s.headers))
		}
		if s.timeout > 0 {
			opts = append(opts, otlploggrpc.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlploggrpc.WithCompressor("gzip"))
		}
		if s.retry {
			opts = append(opts, otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  retryMaxElapsed,
			}))
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	} else {
		var opts []otlploghttp.Option
		if s.url {
			opts = append(opts, otlploghttp.WithEndpointURL(s.endpoint))
		} else {
			opts = append(opts, otlploghttp.WithEndpoint(s.endpoint))
		}
		if s.tls == nil {
			opts = append(opts, otlploghttp.WithInsecure())
		} else {
			opts = append(opts, otlploghttp.WithTLSClientConfig(s.tls))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(s.headers))
		}
		if s.timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		if s.retry {
			opts = append(opts, otlploghttp.WithRetry(otlploghttp.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  retryMaxElapsed,
			}))
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}
	return exporter, nil
}
