package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartTelemetryReportsExporter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := Config{
		LogLevel:             "info",
		OtelEnabled:          true,
		OtelExporterEndpoint: "collector:4317",
		OtelExporterProtocol: "grpc",
		OtelSamplingRatio:    0.25,
	}

	startTelemetry(cfg, zap.New(core), sdktrace.NewTracerProvider(), noop.NewMeterProvider())

	entries := logs.FilterMessage("telemetry started").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["otel_enabled"])
	assert.Equal(t, "collector:4317", fields["otlp_endpoint"])
	assert.Equal(t, 0.25, fields["sampling_ratio"])
}

func TestStartTelemetryWithoutExport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	startTelemetry(Config{LogLevel: "warn"}, zap.New(core), sdktrace.NewTracerProvider(), noop.NewMeterProvider())

	entries := logs.FilterMessage("telemetry started").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "otlp_endpoint")
}
