// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// ENV-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, empty when ENV-only.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file on top of cfg with STRICT parsing.
// Unknown fields fail the load to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)

	cfg.API.ListenAddr = l.envString("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.ReadTimeout = l.envDuration("API_READ_TIMEOUT", cfg.API.ReadTimeout)
	cfg.API.WriteTimeout = l.envDuration("API_WRITE_TIMEOUT", cfg.API.WriteTimeout)
	cfg.API.ShutdownTimeout = l.envDuration("API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)
	cfg.API.RateLimitRPS = l.envInt("API_RATE_LIMIT_RPS", cfg.API.RateLimitRPS)
	cfg.API.RateLimitBurst = l.envInt("API_RATE_LIMIT_BURST", cfg.API.RateLimitBurst)

	cfg.Metrics.ListenAddr = l.envString("METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Storage.Backend = l.envString("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Path = l.envString("STORAGE_PATH", cfg.Storage.Path)

	cfg.Alerts.Backend = l.envString("ALERTS_BACKEND", cfg.Alerts.Backend)
	cfg.Alerts.RedisAddr = l.envString("ALERTS_REDIS_ADDR", cfg.Alerts.RedisAddr)
	cfg.Alerts.RedisPassword = l.envString("ALERTS_REDIS_PASSWORD", cfg.Alerts.RedisPassword)
	cfg.Alerts.RedisDB = l.envInt("ALERTS_REDIS_DB", cfg.Alerts.RedisDB)
	cfg.Alerts.Channel = l.envString("ALERTS_CHANNEL", cfg.Alerts.Channel)
	cfg.Alerts.HistoryLen = l.envInt("ALERTS_HISTORY_LEN", cfg.Alerts.HistoryLen)
	cfg.Alerts.RatePerSecond = l.envFloat("ALERTS_RATE_PER_SECOND", cfg.Alerts.RatePerSecond)
	cfg.Alerts.Burst = l.envInt("ALERTS_BURST", cfg.Alerts.Burst)

	cfg.Forecast.Backend = l.envString("FORECAST_BACKEND", cfg.Forecast.Backend)
	cfg.Forecast.InfluxURL = l.envString("FORECAST_INFLUX_URL", cfg.Forecast.InfluxURL)
	cfg.Forecast.InfluxToken = l.envString("FORECAST_INFLUX_TOKEN", cfg.Forecast.InfluxToken)
	cfg.Forecast.InfluxOrg = l.envString("FORECAST_INFLUX_ORG", cfg.Forecast.InfluxOrg)
	cfg.Forecast.InfluxBucket = l.envString("FORECAST_INFLUX_BUCKET", cfg.Forecast.InfluxBucket)
	cfg.Forecast.Measurement = l.envString("FORECAST_MEASUREMENT", cfg.Forecast.Measurement)
	cfg.Forecast.PriceMeasurement = l.envString("FORECAST_PRICE_MEASUREMENT", cfg.Forecast.PriceMeasurement)

	cfg.Policy.PromotionThreshold = l.envInt("POLICY_PROMOTION_THRESHOLD", cfg.Policy.PromotionThreshold)
	cfg.Policy.WarmupTargetDays = l.envInt("POLICY_WARMUP_TARGET_DAYS", cfg.Policy.WarmupTargetDays)
	cfg.Policy.AutoWarmup = l.envBool("POLICY_AUTO_WARMUP", cfg.Policy.AutoWarmup)
	cfg.Policy.BaselineHitRate = l.envFloat("POLICY_BASELINE_HIT_RATE", cfg.Policy.BaselineHitRate)
	cfg.Policy.WarnDelta = l.envFloat("POLICY_WARN_DELTA", cfg.Policy.WarnDelta)
	cfg.Policy.CriticalDelta = l.envFloat("POLICY_CRITICAL_DELTA", cfg.Policy.CriticalDelta)

	cfg.DailyRun.Schedule = l.envBool("DAILY_RUN_SCHEDULE", cfg.DailyRun.Schedule)
	cfg.DailyRun.At = l.envString("DAILY_RUN_AT", cfg.DailyRun.At)
	cfg.DailyRun.Timeout = l.envDuration("DAILY_RUN_TIMEOUT", cfg.DailyRun.Timeout)
	cfg.DailyRun.StepTimeout = l.envDuration("DAILY_RUN_STEP_TIMEOUT", cfg.DailyRun.StepTimeout)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
}

// resolvePaths places durable backends under DataDir when no explicit
// path is configured.
func resolvePaths(cfg *Config) {
	if cfg.Store.Path == "" && cfg.Store.Backend == "sqlite" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "lifecycle.db")
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case "file":
			cfg.Storage.Path = filepath.Join(cfg.DataDir, "intel")
		case "badger":
			cfg.Storage.Path = filepath.Join(cfg.DataDir, "badger")
		}
	}
}
