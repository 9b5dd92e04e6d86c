// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/validate"
)

// Validate validates a Config using the centralized validation package.
// It may create DataDir.
func Validate(cfg Config) error {
	v := validate.New()

	v.OneOf("logLevel", strings.ToLower(cfg.LogLevel), validate.LogLevels)
	v.NotEmpty("logService", cfg.LogService)
	v.Directory("dataDir", cfg.DataDir, false)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.PositiveDuration("api.readTimeout", cfg.API.ReadTimeout)
	v.PositiveDuration("api.writeTimeout", cfg.API.WriteTimeout)
	v.PositiveDuration("api.shutdownTimeout", cfg.API.ShutdownTimeout)
	if cfg.API.RateLimitRPS > 0 {
		v.Positive("api.rateLimitBurst", cfg.API.RateLimitBurst)
	}
	if cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
		if cfg.Metrics.ListenAddr == cfg.API.ListenAddr {
			v.AddError("metrics.listenAddr", "must differ from api.listenAddr", cfg.Metrics.ListenAddr)
		}
	}

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "sqlite"})
	if cfg.Store.Backend == "sqlite" {
		v.NotEmpty("store.path", cfg.Store.Path)
	}
	v.OneOf("storage.backend", cfg.Storage.Backend, []string{"memory", "file", "badger"})
	if cfg.Storage.Backend != "memory" {
		v.NotEmpty("storage.path", cfg.Storage.Path)
	}

	v.OneOf("alerts.backend", cfg.Alerts.Backend, []string{"log", "redis"})
	if cfg.Alerts.Backend == "redis" {
		v.NotEmpty("alerts.redisAddr", cfg.Alerts.RedisAddr)
		v.NotEmpty("alerts.channel", cfg.Alerts.Channel)
		v.Range("alerts.redisDB", cfg.Alerts.RedisDB, 0, 15)
		v.Positive("alerts.historyLen", cfg.Alerts.HistoryLen)
	}
	if cfg.Alerts.RatePerSecond < 0 {
		v.AddError("alerts.ratePerSecond", "cannot be negative", cfg.Alerts.RatePerSecond)
	}
	if cfg.Alerts.RatePerSecond > 0 {
		v.Positive("alerts.burst", cfg.Alerts.Burst)
	}

	v.OneOf("forecast.backend", cfg.Forecast.Backend, []string{"static", "influx"})
	if cfg.Forecast.Backend == "influx" {
		v.URL("forecast.influxURL", cfg.Forecast.InfluxURL, []string{"http", "https"})
		v.NotEmpty("forecast.influxToken", cfg.Forecast.InfluxToken)
		v.NotEmpty("forecast.influxOrg", cfg.Forecast.InfluxOrg)
		v.NotEmpty("forecast.influxBucket", cfg.Forecast.InfluxBucket)
	}

	validatePolicy(v, cfg.Policy)

	v.Custom("dailyRun.at", cfg.DailyRun.At, func(any) error {
		_, err := dailyrun.ParseTimeOfDay(cfg.DailyRun.At)
		return err
	})
	v.PositiveDuration("dailyRun.timeout", cfg.DailyRun.Timeout)
	v.PositiveDuration("dailyRun.stepTimeout", cfg.DailyRun.StepTimeout)
	if cfg.DailyRun.StepTimeout > cfg.DailyRun.Timeout {
		v.AddError("dailyRun.stepTimeout",
			fmt.Sprintf("must not exceed dailyRun.timeout (%s)", cfg.DailyRun.Timeout),
			cfg.DailyRun.StepTimeout)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http", "noop"})
		if cfg.Telemetry.Exporter != "noop" {
			v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		}
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func validatePolicy(v *validate.Validator, p model.Policy) {
	v.Positive("policy.promotionThreshold", p.PromotionThreshold)
	v.NonNegative("policy.warmupTargetDays", p.WarmupTargetDays)
	v.FloatRange("policy.baselineHitRate", p.BaselineHitRate, 0, 1)
	v.FloatRange("policy.warnDelta", p.WarnDelta, 0, 1)
	v.FloatRange("policy.criticalDelta", p.CriticalDelta, 0, 1)
	if p.CriticalDelta < p.WarnDelta {
		v.AddError("policy.criticalDelta", "must be >= policy.warnDelta", p.CriticalDelta)
	}
}
