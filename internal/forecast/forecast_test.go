// SPDX-License-Identifier: MIT

package forecast

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

func TestStaticSource_Deterministic(t *testing.T) {
	now := time.Date(2025, 5, 3, 21, 0, 0, 0, time.UTC)
	src := NewStaticSource(StaticConfig{PerDay: 5, HitRate: 0.6}, clock.NewFake(now))
	ctx := context.Background()
	since := time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC)

	a, err := src.ResolveOutcomes(ctx, model.AssetBTC, since)
	require.NoError(t, err)
	b, err := src.ResolveOutcomes(ctx, model.AssetBTC, since)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// midnights of May 2 and May 3
	require.Len(t, a, 10)
	hits := 0
	for _, o := range a {
		assert.True(t, o.ResolvedAt.After(since))
		assert.False(t, o.ResolvedAt.After(now))
		if o.Hit() {
			hits++
		}
	}
	assert.Equal(t, 6, hits)
}

func TestStaticSource_EmptyWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC)
	src := NewStaticSource(StaticConfig{}, clock.NewFake(now))
	out, err := src.ResolveOutcomes(context.Background(), model.AssetSPX, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStaticSource_MidnightSinceIsExclusive(t *testing.T) {
	now := time.Date(2025, 5, 2, 1, 0, 0, 0, time.UTC)
	src := NewStaticSource(StaticConfig{PerDay: 2, HitRate: 1}, clock.NewFake(now))
	out, err := src.ResolveOutcomes(context.Background(), model.AssetBTC, time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStaticSource_Market(t *testing.T) {
	src := NewStaticSource(StaticConfig{}, clock.NewFake(time.Unix(0, 0)))
	snap, err := src.MarketSnapshot(context.Background(), model.AssetSPX)
	require.NoError(t, err)
	assert.Equal(t, 5200.0, snap.Price)
	assert.Equal(t, "static", snap.Source)
}

func TestInfluxConfig_Validate(t *testing.T) {
	err := InfluxConfig{}.Validate()
	require.Error(t, err)
	for _, want := range []string{"url", "token", "org", "bucket"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NoError(t, InfluxConfig{URL: "http://localhost:8086", Token: "t", Org: "o", Bucket: "b"}.Validate())
}

func TestNew_Backends(t *testing.T) {
	src, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticSource{}, src)

	_, err = New(Config{Backend: "influx"}, nil)
	assert.Error(t, err)

	in, err := New(Config{Backend: "influx", InfluxURL: "http://localhost:8086", InfluxToken: "t", InfluxOrg: "o", InfluxBucket: "b"}, nil)
	require.NoError(t, err)
	in.Close()

	_, err = New(Config{Backend: "csv"}, nil)
	assert.EqualError(t, err, "unknown forecast backend: csv")
}

func TestOutcomesQuery(t *testing.T) {
	since := time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC)
	q := outcomesQuery("fractal", "forecast_outcomes", model.AssetBTC, since, since.Add(24*time.Hour))
	assert.Contains(t, q, `from(bucket: "fractal")`)
	assert.Contains(t, q, "range(start: 2025-05-01T21:00:00Z, stop: 2025-05-02T21:00:00Z)")
	assert.Contains(t, q, `r.asset == "BTC"`)
	assert.True(t, strings.Contains(priceQuery("fractal", "prices", model.AssetSPX), `r.asset == "SPX"`))
}

func TestOutcomeFromValues(t *testing.T) {
	at := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	o, ok := outcomeFromValues(model.AssetBTC, at, map[string]any{
		"direction":   int64(-1),
		"realized":    -0.02,
		"forecast_id": "f-1",
		"issued_at":   int64(at.Add(-24 * time.Hour).UnixMilli()),
	})
	require.True(t, ok)
	assert.Equal(t, -1, o.Direction)
	assert.True(t, o.Hit())
	assert.Equal(t, "f-1", o.ForecastID)
	assert.True(t, o.IssuedAt.Equal(at.Add(-24*time.Hour)))

	_, ok = outcomeFromValues(model.AssetBTC, at, map[string]any{"direction": 0.0, "realized": 0.1})
	assert.False(t, ok)
	_, ok = outcomeFromValues(model.AssetBTC, at, map[string]any{"direction": 1.0})
	assert.False(t, ok)
}
