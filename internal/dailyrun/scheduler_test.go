// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) RunDailyPipeline(_ context.Context, asset model.Asset, mode model.RunMode) (*model.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(asset)+"/"+string(mode))
	return &model.RunResult{RunID: "r", Asset: asset, Mode: mode, Status: model.RunCompleted}, nil
}

func (r *recordingRunner) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.calls...)
	sort.Strings(out)
	return out
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("21:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 21, Minute: 30}, tod)
	assert.Equal(t, "21:30", tod.String())

	for _, bad := range []string{"", "25:00", "9pm", "12:60"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDay_Next(t *testing.T) {
	tod := TimeOfDay{Hour: 21, Minute: 0}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC), time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC)},
		{"exactly now rolls over", time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC), time.Date(2025, 5, 2, 21, 0, 0, 0, time.UTC)},
		{"after today", time.Date(2025, 12, 31, 22, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)},
		{"non-UTC input", time.Date(2025, 5, 1, 22, 30, 0, 0, time.FixedZone("CEST", 2*3600)), time.Date(2025, 5, 1, 21, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(tod.Next(tt.now)), "got %s", tod.Next(tt.now))
		})
	}
}

func TestScheduler_FiresDailyForAllAssets(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := clock.NewFake(time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC))
	runner := &recordingRunner{}
	s := NewScheduler(runner, TimeOfDay{Hour: 21}, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(59 * time.Minute)
	assert.Empty(t, runner.snapshot())

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(runner.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"BTC/SCHEDULED", "SPX/SCHEDULED"}, runner.snapshot())

	// next timer is armed for the following day
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(24 * time.Hour)
	require.Eventually(t, func() bool { return len(runner.snapshot()) == 4 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
