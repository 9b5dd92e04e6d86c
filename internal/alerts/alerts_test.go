// SPDX-License-Identifier: MIT

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

func setupMiniRedis(t *testing.T, historyLen int) (*miniredis.Miniredis, *RedisAlerter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, newRedisAlerter(client, RedisConfig{Channel: "test:alerts", HistoryLen: historyLen})
}

func alert(seq int64, typ model.EventType) dailyrun.Alert {
	return dailyrun.AlertFor("run-1", model.Event{
		Seq:        seq,
		Type:       typ,
		ModelID:    model.AssetBTC,
		FromStatus: model.StatusWarmup,
		ToStatus:   model.StatusApplied,
	})
}

func TestRedisAlerter_PublishesAndCapsHistory(t *testing.T) {
	mr, a := setupMiniRedis(t, 2)
	ctx := context.Background()

	sub := a.client.Subscribe(ctx, "test:alerts")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, a.Dispatch(ctx, alert(i, model.EventAutoPromoted)))
	}

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got dailyrun.Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, int64(1), got.Event.Seq)

	items, err := mr.List("test:alerts:history")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	recent, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Event.Seq)
	assert.Equal(t, int64(2), recent[1].Event.Seq)
}

func TestRedisAlerter_ServerDown(t *testing.T) {
	mr, a := setupMiniRedis(t, 10)
	mr.Close()
	err := a.Dispatch(context.Background(), alert(1, model.EventApplied))
	assert.Error(t, err)
}

func TestNewRedisAlerter_ConnectionFailure(t *testing.T) {
	_, err := NewRedisAlerter(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.ErrorContains(t, err, "redis connection failed")
}

type countingAlerter struct{ n int }

func (c *countingAlerter) Dispatch(context.Context, dailyrun.Alert) error {
	c.n++
	return nil
}

func TestThrottled_DropsInfoButNotCritical(t *testing.T) {
	next := &countingAlerter{}
	th := NewThrottled(next, 0.0001, 1)
	ctx := context.Background()

	require.NoError(t, th.Dispatch(ctx, alert(1, model.EventApplied)))
	assert.ErrorIs(t, th.Dispatch(ctx, alert(2, model.EventApplied)), ErrThrottled)
	require.NoError(t, th.Dispatch(ctx, alert(3, model.EventAutoRevoked)))
	assert.Equal(t, 2, next.n)
}

func TestLogAlerter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogAlerter(zerolog.New(&buf))
	require.NoError(t, l.Dispatch(context.Background(), alert(7, model.EventAutoRevoked)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "alert.dispatched", line["event"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "AUTO_REVOKED", line["lifecycle_event"])
}

func TestNew_Backends(t *testing.T) {
	a, err := New(context.Background(), Config{Backend: "log", RatePerSecond: 5})
	require.NoError(t, err)
	assert.IsType(t, &Throttled{}, a)

	_, err = New(context.Background(), Config{Backend: "sns"})
	assert.EqualError(t, err, "unknown alerts backend: sns")

	mr := miniredis.RunT(t)
	r, err := New(context.Background(), Config{Backend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &RedisAlerter{}, r)
	_ = r.(*RedisAlerter).Close()
}

func TestHistoryOf(t *testing.T) {
	_, ok := HistoryOf(NewLogAlerter(zerolog.Nop()))
	assert.False(t, ok)

	_, r := setupMiniRedis(t, 10)
	got, ok := HistoryOf(NewThrottled(r, 1, 1))
	require.True(t, ok)
	assert.Same(t, r, got)
}
