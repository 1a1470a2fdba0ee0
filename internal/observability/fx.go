package observability

import (
	"github.com/smallbiznis/learnpay/internal/observability/logger"
	"github.com/smallbiznis/learnpay/internal/observability/metrics"
	"github.com/smallbiznis/learnpay/internal/observability/tracing"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(startTelemetry),
	fx.Invoke(ensureSchedulerMetrics),
)

// startTelemetry builds both OTel providers at boot so exporter errors fail
// startup, and reports where telemetry goes.
func startTelemetry(cfg Config, log *zap.Logger, _ *sdktrace.TracerProvider, _ metric.MeterProvider) {
	fields := []zap.Field{
		zap.Bool("otel_enabled", cfg.OtelEnabled),
		zap.String("log_level", cfg.LogLevel),
	}
	if cfg.OtelEnabled {
		fields = append(fields,
			zap.String("otlp_endpoint", cfg.OtelExporterEndpoint),
			zap.String("otlp_protocol", cfg.OtelExporterProtocol),
			zap.Float64("sampling_ratio", cfg.OtelSamplingRatio),
		)
	}
	log.Named("observability").Info("telemetry started", fields...)
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func ensureSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}
