// SPDX-License-Identifier: MIT

// Package alerts delivers lifecycle alerts produced by daily runs.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
)

// ErrThrottled is returned when an alert was dropped by the rate limiter.
var ErrThrottled = errors.New("alert throttled")

// Config selects and configures the alert backend.
type Config struct {
	Backend       string // log or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channel       string
	HistoryLen    int
	RatePerSecond float64
	Burst         int
}

// New builds the configured alerter, wrapped in a throttle when
// RatePerSecond > 0.
func New(ctx context.Context, cfg Config) (dailyrun.Alerter, error) {
	var (
		a   dailyrun.Alerter
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "log":
		a = NewLogAlerter(log.WithComponent("alerts"))
	case "redis":
		a, err = NewRedisAlerter(ctx, RedisConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			Channel:    cfg.Channel,
			HistoryLen: cfg.HistoryLen,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown alerts backend: %s", cfg.Backend)
	}
	if cfg.RatePerSecond > 0 {
		a = NewThrottled(a, cfg.RatePerSecond, cfg.Burst)
	}
	return a, nil
}

// HistoryOf returns the redis backend behind a, looking through throttles.
// Only the redis backend retains alert history.
func HistoryOf(a dailyrun.Alerter) (*RedisAlerter, bool) {
	for {
		switch v := a.(type) {
		case *RedisAlerter:
			return v, true
		case interface{ Unwrap() dailyrun.Alerter }:
			a = v.Unwrap()
		default:
			return nil, false
		}
	}
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	logger zerolog.Logger
}

func NewLogAlerter(logger zerolog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Dispatch(ctx context.Context, a dailyrun.Alert) error {
	logger := log.WithContext(ctx, l.logger)
	evt := logger.Info()
	if a.Severity == "critical" {
		evt = logger.Warn()
	}
	evt.
		Str(log.FieldEvent, "alert.dispatched").
		Str(log.FieldAsset, string(a.Asset)).
		Str(log.FieldRunID, a.RunID).
		Str(log.FieldSeverity, a.Severity).
		Str("lifecycle_event", string(a.Event.Type)).
		Int64("seq", a.Event.Seq).
		Msg(a.Message)
	metrics.RecordAlert("log", "ok")
	return nil
}
