package serverapp

import (
	"context"
	"log/slog"

	"entitygraph/internal/config"
	"entitygraph/internal/logging"
	"entitygraph/internal/observability"
)

// InitLogger builds the process logger. With log export enabled the logger
// also writes to an OTLP logger provider, which the caller must attach to the
// App for shutdown.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)
	provider, err := observability.InitLoggerProvider(otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = provider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, provider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.GraphQLMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}
	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, err
	}
	graphqlMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}
	logger.Info("OpenTelemetry metrics initialized", slog.String("service_name", cfg.Observability.ServiceName))
	return meterProvider, graphqlMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}
	tracesConfig := cfg.Observability.TracesConfig()
	tracerProvider, err := observability.InitTracerProvider(otelConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}
	logger.Info("OpenTelemetry tracing initialized",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return tracerProvider, nil
}

// otelConfig maps one signal's exporter settings onto the observability
// package configuration.
func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}
