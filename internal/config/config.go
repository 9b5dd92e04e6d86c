// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads fractald configuration from defaults, a strict YAML
// file and FRACTAL_* environment variables, in that order of precedence.
package config

import (
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "FRACTAL_"

// Config is the complete daemon configuration.
type Config struct {
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
	DataDir    string `yaml:"dataDir"`

	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Store     StoreConfig     `yaml:"store"`
	Storage   StorageConfig   `yaml:"storage"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Policy    model.Policy    `yaml:"policy"`
	DailyRun  DailyRunConfig  `yaml:"dailyRun"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is stamped from the binary, never read from file or ENV.
	Version string `yaml:"-"`
}

type APIConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimitRPS <= 0 disables request rate limiting.
	RateLimitRPS   int `yaml:"rateLimitRPS"`
	RateLimitBurst int `yaml:"rateLimitBurst"`
}

type MetricsConfig struct {
	// ListenAddr empty disables the dedicated metrics listener.
	ListenAddr string `yaml:"listenAddr"`
}

// StoreConfig selects the lifecycle store (state, events, run history).
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the sink for snapshots, progress and timeline.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type AlertsConfig struct {
	Backend       string  `yaml:"backend"`
	RedisAddr     string  `yaml:"redisAddr"`
	RedisPassword string  `yaml:"redisPassword"`
	RedisDB       int     `yaml:"redisDB"`
	Channel       string  `yaml:"channel"`
	HistoryLen    int     `yaml:"historyLen"`
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

type ForecastConfig struct {
	Backend          string `yaml:"backend"`
	InfluxURL        string `yaml:"influxURL"`
	InfluxToken      string `yaml:"influxToken"`
	InfluxOrg        string `yaml:"influxOrg"`
	InfluxBucket     string `yaml:"influxBucket"`
	Measurement      string `yaml:"measurement"`
	PriceMeasurement string `yaml:"priceMeasurement"`
}

type DailyRunConfig struct {
	Schedule    bool          `yaml:"schedule"`
	At          string        `yaml:"at"`
	Timeout     time.Duration `yaml:"timeout"`
	StepTimeout time.Duration `yaml:"stepTimeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the configuration used when neither file nor ENV set a key.
func Defaults() Config {
	return Config{
		LogLevel:   "info",
		LogService: "fractald",
		DataDir:    "/var/lib/fractal",
		API: APIConfig{
			ListenAddr:      ":8088",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Metrics: MetricsConfig{ListenAddr: ":9098"},
		Store:   StoreConfig{Backend: "sqlite"},
		Storage: StorageConfig{Backend: "file"},
		Alerts: AlertsConfig{
			Backend:    "log",
			RedisAddr:  "localhost:6379",
			Channel:    "fractal:alerts",
			HistoryLen: 500,
		},
		Forecast: ForecastConfig{
			Backend:          "static",
			Measurement:      "forecast_outcomes",
			PriceMeasurement: "prices",
		},
		Policy: model.DefaultPolicy(),
		DailyRun: DailyRunConfig{
			Schedule:    true,
			At:          "06:00",
			Timeout:     60 * time.Second,
			StepTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
