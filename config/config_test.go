package config

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
	path := filepath.Join(t.TempDir(), "controller_config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 500*time.Millisecond, cfg.Failover.CorrelationWindow())
	assert.Equal(t, 2*time.Second, cfg.Failover.StabilityInterval())
	assert.Equal(t, 0.01, cfg.Failover.ErrorRateThreshold)
	assert.Equal(t, "k_shortest", cfg.Routing.Algorithm)
	assert.Equal(t, "hop", cfg.Routing.Weighting)
	assert.Equal(t, 3, cfg.Installer.RetryLimit)
	assert.Equal(t, "127.0.0.1:8480", cfg.HTTP.ListenAddr)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
[failover]
correlation_window_ms = 250
stability_interval_ms = 1000
error_rate_threshold = 0.05
utilization_threshold = 0.8
pool_size = 8
stats_interval_ms = 500

[routing]
weighting = "inverse_capacity"
algorithm = "dijkstra"
default_k = 5
cache_ttl_ms = 10000

[installer]
retry_limit = 1
retry_backoff_ms = 10
queue_size = 64

[http]
listen_addr = "127.0.0.1:9000"

[log]
dir = "/tmp/ctl-logs"
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Failover.CorrelationWindow())
	assert.Equal(t, time.Second, cfg.Failover.StabilityInterval())
	assert.Equal(t, 0.05, cfg.Failover.ErrorRateThreshold)
	assert.Equal(t, "inverse_capacity", cfg.Routing.Weighting)
	assert.Equal(t, "dijkstra", cfg.Routing.Algorithm)
	assert.Equal(t, 5, cfg.Routing.DefaultK)
	assert.Equal(t, 10*time.Second, cfg.Routing.CacheTTL())
	assert.Equal(t, 1, cfg.Installer.RetryLimit)
	assert.Equal(t, 10*time.Millisecond, cfg.Installer.RetryBackoff())
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[failover]
correlation_window_ms = 100

[routing]
weighting = "hop"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Failover.CorrelationWindow())
	// Everything unset falls back to defaults.
	assert.Equal(t, 2*time.Second, cfg.Failover.StabilityInterval())
	assert.Equal(t, "k_shortest", cfg.Routing.Algorithm)
	assert.Equal(t, 1024, cfg.Installer.QueueSize)
	assert.Equal(t, "127.0.0.1:8480", cfg.HTTP.ListenAddr)
}

func TestLoadRepairsBadValues(t *testing.T) {
	path := writeConfig(t, `
[failover]
correlation_window_ms = -5

[routing]
weighting = "simulated_annealing"

[http]
listen_addr = ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Failover.CorrelationWindow())
	assert.Equal(t, "hop", cfg.Routing.Weighting)
	assert.Equal(t, "127.0.0.1:8480", cfg.HTTP.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "[failover\ncorrelation_window_ms = ")
	_, err := Load(path)
	assert.Error(t, err)
}
