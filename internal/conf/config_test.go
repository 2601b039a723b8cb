package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: production\n"))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 3, cfg.Bus.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Bus.BaseDelay.Std())
	assert.Equal(t, "analytics", cfg.Bus.TopicPrefix)
	assert.Equal(t, 500, cfg.Sink.MaxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Sink.FlushInterval.Std())
	assert.Equal(t, "sqlite", cfg.Warehouse.Driver)
	assert.Equal(t, time.Minute, cfg.Alerting.CheckInterval.Std())
	assert.InDelta(t, 0.01, cfg.Alerting.EqualTolerance, 1e-9)
	assert.Equal(t, 90, cfg.Alerting.DeliveryRetentionDays)
	assert.False(t, cfg.Broker.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
bus:
  maxattempts: 5
  basedelay: 1s
sink:
  maxbatchsize: 100
  flushinterval: 30s
broker:
  enabled: true
  url: tcp://broker.local:1883
  qos: 2
warehouse:
  driver: mysql
  dsn: user:pass@tcp(db:3306)/analytics
alerting:
  checkinterval: 5m
  deliveryretentiondays: 30
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Bus.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Bus.BaseDelay.Std())
	assert.Equal(t, 100, cfg.Sink.MaxBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Sink.FlushInterval.Std())
	assert.True(t, cfg.Broker.Enabled)
	assert.Equal(t, 2, cfg.Broker.QoS)
	assert.Equal(t, "mysql", cfg.Warehouse.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Alerting.CheckInterval.Std())
	assert.Equal(t, 30, cfg.Alerting.DeliveryRetentionDays)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		substr string
	}{
		{"zero attempts", "bus:\n  maxattempts: 0\n", "bus.maxattempts"},
		{"tiny flush interval", "sink:\n  flushinterval: 100ms\n", "sink.flushinterval"},
		{"broker without url", "broker:\n  enabled: true\n", "broker.url"},
		{"bad qos", "broker:\n  qos: 3\n", "broker.qos"},
		{"unknown driver", "warehouse:\n  driver: postgres\n", "warehouse driver"},
		{"mysql without dsn", "warehouse:\n  driver: mysql\n", "warehouse.dsn"},
		{"zero retention", "alerting:\n  deliveryretentiondays: 0\n", "deliveryretentiondays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}
