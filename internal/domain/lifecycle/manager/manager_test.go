// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/drift"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
)

func newManager(t *testing.T) (*Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	m := machine.New(machine.Deps{
		Store:  store.NewMemoryStore(),
		Clock:  clock.NewFake(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)),
		Logger: zerolog.Nop(),
		Policy: model.DefaultPolicy(),
	})
	return New(Deps{Machine: m, Audit: audit.NewLoggerWith(zerolog.New(&buf))}), &buf
}

func TestWithAsset_InvalidAsset(t *testing.T) {
	mgr, _ := newManager(t)
	called := false
	err := mgr.WithAsset(context.Background(), "ETH", func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, model.ErrInvalidAsset)
	assert.False(t, called)
}

func TestWithAsset_BusyWhenContextExpires(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, _ := newManager(t)
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = mgr.WithAsset(context.Background(), model.AssetBTC, func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := mgr.WithAsset(ctx, model.AssetBTC, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrAssetBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other assets are independent.
	require.NoError(t, mgr.WithAsset(context.Background(), model.AssetSPX, func(context.Context) error { return nil }))

	close(done)
	require.NoError(t, mgr.WithAsset(context.Background(), model.AssetBTC, func(context.Context) error { return nil }))
}

func TestWithAsset_Serializes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, _ := newManager(t)
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.WithAsset(context.Background(), model.AssetBTC, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestForceApply_AuditsBlocked(t *testing.T) {
	mgr, buf := newManager(t)
	ctx := audit.ContextWithActor(context.Background(), "ops")

	_, err := mgr.UpdateDrift(ctx, model.AssetBTC, "CRITICAL", drift.Deltas{})
	require.NoError(t, err)

	res, err := mgr.ForceApply(ctx, model.AssetBTC, "go live")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Contains(t, buf.String(), `"event_type":"lifecycle.blocked"`)
	assert.Contains(t, buf.String(), `"actor":"ops"`)
}

func TestForceWarmup_AuditsFailure(t *testing.T) {
	mgr, buf := newManager(t)
	_, err := mgr.ForceWarmup(context.Background(), model.AssetSPX, -1, "")
	require.ErrorIs(t, err, machine.ErrInvalidTargetDays)
	assert.Contains(t, buf.String(), `"result":"failure"`)
}

func TestValidationBeforeLock(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	_, err := mgr.IncrementSamples(ctx, model.AssetBTC, 0)
	assert.ErrorIs(t, err, machine.ErrInvalidCount)

	_, err = mgr.UpdateDrift(ctx, model.AssetBTC, "BAD", drift.Deltas{})
	assert.ErrorIs(t, err, model.ErrInvalidSeverity)

	_, err = mgr.Events(ctx, store.EventQuery{Asset: "ETH"})
	assert.ErrorIs(t, err, model.ErrInvalidAsset)

	st, err := mgr.Get(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestInitAll_AndEvents(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	states, err := mgr.InitAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)

	evs, err := mgr.Events(ctx, store.EventQuery{})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, model.EventInitialized, ev.Type)
	}
}

func TestConcurrentOperatorActions(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	_, err := mgr.ForceWarmup(ctx, model.AssetBTC, 0, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.IncrementSamples(ctx, model.AssetBTC, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// After 30 samples the model is APPLIED and the rest are rejected.
	var ok, notWarm int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, machine.ErrNotInWarmup):
			notWarm++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 30, ok)
	assert.Equal(t, 10, notWarm)

	st, err := mgr.Get(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, st.Status)
	assert.False(t, strings.Contains(st.LastTransitionReason, "integrity"))
}
