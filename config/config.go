package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Config is the controller configuration, loaded from a TOML file. Timing
// values are soft targets and policy knobs, not enforced guarantees.
type Config struct {
	Failover  FailoverConfig  `toml:"failover"`
	Routing   RoutingConfig   `toml:"routing"`
	Installer InstallerConfig `toml:"installer"`
	HTTP      HTTPConfig      `toml:"http"`
	Log       LogConfig       `toml:"log"`
}

type FailoverConfig struct {
	CorrelationWindowMs  int     `toml:"correlation_window_ms"`
	StabilityIntervalMs  int     `toml:"stability_interval_ms"`
	ErrorRateThreshold   float64 `toml:"error_rate_threshold"`
	UtilizationThreshold float64 `toml:"utilization_threshold"`
	PoolSize             int     `toml:"pool_size"`
	StatsIntervalMs      int     `toml:"stats_interval_ms"`
}

type RoutingConfig struct {
	// Weighting is "hop" or "inverse_capacity".
	Weighting  string `toml:"weighting"`
	Algorithm  string `toml:"algorithm"`
	DefaultK   int    `toml:"default_k"`
	CacheTTLMs int    `toml:"cache_ttl_ms"`
}

type InstallerConfig struct {
	RetryLimit     int `toml:"retry_limit"`
	RetryBackoffMs int `toml:"retry_backoff_ms"`
	QueueSize      int `toml:"queue_size"`
}

type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type LogConfig struct {
	Dir   string `toml:"dir"`
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Failover: FailoverConfig{
			CorrelationWindowMs:  500,
			StabilityIntervalMs:  2000,
			ErrorRateThreshold:   0.01,
			UtilizationThreshold: 0.9,
			PoolSize:             32,
			StatsIntervalMs:      1000,
		},
		Routing: RoutingConfig{
			Weighting:  "hop",
			Algorithm:  "k_shortest",
			DefaultK:   3,
			CacheTTLMs: 30000,
		},
		Installer: InstallerConfig{
			RetryLimit:     3,
			RetryBackoffMs: 50,
			QueueSize:      1024,
		},
		HTTP: HTTPConfig{ListenAddr: "127.0.0.1:8480"},
		Log:  LogConfig{Dir: "./logs", Level: "info"},
	}
}

// Load reads the TOML file at path, filling gaps with defaults. Missing keys
// get a warning, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if cfg.Failover.CorrelationWindowMs <= 0 {
		log.Warningf("correlation_window_ms not set, using default 500")
		cfg.Failover.CorrelationWindowMs = 500
	}
	if cfg.Routing.Weighting != "hop" && cfg.Routing.Weighting != "inverse_capacity" {
		log.Warningf("unknown weighting %q, using hop count", cfg.Routing.Weighting)
		cfg.Routing.Weighting = "hop"
	}
	if cfg.HTTP.ListenAddr == "" {
		log.Warningf("http listen_addr not set, using 127.0.0.1:8480")
		cfg.HTTP.ListenAddr = "127.0.0.1:8480"
	}
	return cfg, nil
}

func (c *FailoverConfig) CorrelationWindow() time.Duration {
	return time.Duration(c.CorrelationWindowMs) * time.Millisecond
}

func (c *FailoverConfig) StabilityInterval() time.Duration {
	return time.Duration(c.StabilityIntervalMs) * time.Millisecond
}

func (c *FailoverConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMs) * time.Millisecond
}

func (c *RoutingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

func (c *InstallerConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
