package observability

import (
	"testing"

	"github.com/smallbiznis/billsync/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{AppName: "billsync", Environment: "production", AppVersion: "1.2.3"})

	assert.Equal(t, "billsync", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("METRICS_PATH", "internal/metrics")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")

	cfg := LoadConfig(config.Config{Environment: "staging"})

	assert.Equal(t, "billsync", cfg.ServiceName)
	assert.True(t, cfg.Debug())
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.Equal(t, "/internal/metrics", cfg.MetricsPath)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
}

func TestMetricsCanBeDisabled(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")

	assert.Empty(t, LoadConfig(config.Config{}).MetricsPath)
}
