// SPDX-License-Identifier: MIT

package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
)

const (
	DefaultChannel    = "fractal:alerts"
	DefaultHistoryLen = 500
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr       string // host:port
	Password   string
	DB         int
	Channel    string // pub/sub channel; the capped history list is "<channel>:history"
	HistoryLen int
}

// RedisAlerter publishes alerts on a channel and keeps a capped history
// list for consumers that were not subscribed.
type RedisAlerter struct {
	client     *redis.Client
	channel    string
	historyLen int64
	logger     zerolog.Logger
}

// NewRedisAlerter connects and pings Redis.
func NewRedisAlerter(ctx context.Context, cfg RedisConfig) (*RedisAlerter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	a := newRedisAlerter(client, cfg)
	a.logger.Info().
		Str(log.FieldEvent, "alerts.redis_connected").
		Str("addr", cfg.Addr).
		Str("channel", a.channel).
		Msg("connected to Redis for alerts")
	return a, nil
}

func newRedisAlerter(client *redis.Client, cfg RedisConfig) *RedisAlerter {
	a := &RedisAlerter{
		client:     client,
		channel:    cfg.Channel,
		historyLen: int64(cfg.HistoryLen),
		logger:     log.WithComponent("alerts"),
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.historyLen <= 0 {
		a.historyLen = DefaultHistoryLen
	}
	return a
}

// HistoryKey is the list holding recent alerts, newest first.
func (r *RedisAlerter) HistoryKey() string { return r.channel + ":history" }

func (r *RedisAlerter) Dispatch(ctx context.Context, a dailyrun.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		metrics.RecordAlert("redis", "error")
		return fmt.Errorf("encode alert: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, r.channel, payload)
		pipe.LPush(ctx, r.HistoryKey(), payload)
		pipe.LTrim(ctx, r.HistoryKey(), 0, r.historyLen-1)
		return nil
	})
	if err != nil {
		metrics.RecordAlert("redis", "error")
		return fmt.Errorf("publish alert: %w", err)
	}
	metrics.RecordAlert("redis", "ok")
	return nil
}

// Recent returns up to n alerts from the history list, newest first.
func (r *RedisAlerter) Recent(ctx context.Context, n int) ([]dailyrun.Alert, error) {
	raw, err := r.client.LRange(ctx, r.HistoryKey(), 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]dailyrun.Alert, 0, len(raw))
	for _, s := range raw {
		var a dailyrun.Alert
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			r.logger.Warn().Err(err).Msg("skipping undecodable alert")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RedisAlerter) Close() error { return r.client.Close() }
