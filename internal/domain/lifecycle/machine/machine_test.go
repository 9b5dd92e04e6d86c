// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package machine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
)

var start = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	m     *Machine
	store *store.MemoryStore
	clock *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.NewFake(start)
	m := New(Deps{Store: st, Clock: clk, Logger: zerolog.Nop(), Policy: model.DefaultPolicy()})
	return &fixture{m: m, store: st, clock: clk}
}

func (f *fixture) events(t *testing.T, asset model.Asset) []model.Event {
	t.Helper()
	evs, err := f.store.Events(context.Background(), store.EventQuery{Asset: asset})
	require.NoError(t, err)
	return evs
}

func countType(evs []model.Event, typ model.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestInit_IdempotentAndEmitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.m.Init(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSimulation, st.Status)
	assert.Equal(t, "SIMULATION", st.SystemMode)
	assert.Equal(t, model.SeverityOK, st.DriftSeverity)
	assert.Equal(t, 30, st.WarmupTargetDays)

	f.clock.Advance(time.Hour)
	again, err := f.m.Init(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, st.UpdatedAt, again.UpdatedAt, "second init must not rewrite")

	evs := f.events(t, model.AssetBTC)
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventInitialized, evs[0].Type)
	assert.Equal(t, model.Status(""), evs[0].FromStatus)
}

func TestOperations_RejectInvalidAssetBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := model.Asset("ETH")

	_, err := f.m.Init(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidAsset)
	_, err = f.m.ForceWarmup(ctx, bad, 30, "x")
	assert.ErrorIs(t, err, ErrInvalidAsset)
	_, err = f.m.UpdateDrift(ctx, bad, model.SeverityOK)
	assert.ErrorIs(t, err, ErrInvalidAsset)
	_, err = f.m.CheckPromotion(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidAsset)

	states, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.UpdateDrift(ctx, model.AssetBTC, "SEVERE")
	assert.ErrorIs(t, err, ErrInvalidSeverity)
	_, err = f.m.ForceWarmup(ctx, model.AssetBTC, -1, "x")
	assert.ErrorIs(t, err, ErrInvalidTargetDays)
	_, err = f.m.IncrementSamples(ctx, model.AssetBTC, 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
	_, err = f.m.ApplyConstitution(ctx, model.AssetBTC, "  ")
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(ErrNotInWarmup))

	// nothing was created by rejected calls
	st, err := f.store.Get(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestResetSimulation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.ForceWarmup(ctx, model.AssetSPX, 10, "go")
	require.NoError(t, err)
	_, err = f.m.IncrementSamples(ctx, model.AssetSPX, 5)
	require.NoError(t, err)
	_, err = f.m.UpdateDrift(ctx, model.AssetSPX, model.SeverityWarn)
	require.NoError(t, err)

	for _, from := range []func() error{
		func() error { return nil },
		func() error { _, err := f.m.Revoke(ctx, model.AssetSPX, "stop"); return err },
		func() error { _, err := f.m.ForceApply(ctx, model.AssetSPX, "go"); return err },
	} {
		require.NoError(t, from())
		st, err := f.m.ResetSimulation(ctx, model.AssetSPX, "operator reset")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSimulation, st.Status)
		assert.Equal(t, 0, st.LiveSamples)
		assert.Equal(t, model.SeverityOK, st.DriftSeverity)
		assert.Equal(t, "operator reset", st.LastTransitionReason)
	}
	assert.Equal(t, 3, countType(f.events(t, model.AssetSPX), model.EventReset))
}

func TestForceWarmup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.m.ForceWarmup(ctx, model.AssetBTC, 0, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWarmup, st.Status)
	assert.Equal(t, "EVALUATION", st.SystemMode)
	assert.Equal(t, 30, st.WarmupTargetDays, "zero selects the policy default")
	require.NotNil(t, st.WarmupStartedAt)
	assert.Equal(t, start, *st.WarmupStartedAt)
	assert.Equal(t, "warmup forced", st.LastTransitionReason)

	evs := f.events(t, model.AssetBTC)
	require.Len(t, evs, 2)
	assert.Equal(t, model.EventWarmupStarted, evs[0].Type)
	assert.Equal(t, model.StatusSimulation, evs[0].FromStatus)
	assert.Equal(t, model.EventInitialized, evs[1].Type)
}

func TestForceApply(t *testing.T) {
	t.Run("applies", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.m.ForceApply(context.Background(), model.AssetBTC, "ship it")
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.False(t, res.Blocked)
		assert.Equal(t, model.StatusApplied, res.State.Status)
		assert.Equal(t, "LIVE", res.State.SystemMode)
		require.NotNil(t, res.State.AppliedAt)
	})

	t.Run("blocked by critical drift", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		_, err := f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical)
		require.NoError(t, err)

		res, err := f.m.ForceApply(ctx, model.AssetBTC, "ship it")
		require.NoError(t, err, "blocked is a result, not an error")
		assert.True(t, res.Blocked)
		assert.False(t, res.Applied)
		assert.Equal(t, "drift severity CRITICAL", res.Reason)
		assert.Equal(t, model.StatusSimulation, res.State.Status)
		assert.Zero(t, countType(f.events(t, model.AssetBTC), model.EventApplied))
	})

	t.Run("blocked by unfixable state", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		_, _, err := f.store.Update(ctx, model.AssetBTC, func(cur *model.State) (*model.State, []model.Event, error) {
			st := model.NewState(model.AssetBTC, -1, start)
			return st, nil, nil
		})
		require.NoError(t, err)

		res, err := f.m.ForceApply(ctx, model.AssetBTC, "")
		require.NoError(t, err)
		assert.True(t, res.Blocked)
		assert.Contains(t, res.Reason, "integrity check failed")
	})
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(time.Minute)
	st, err := f.m.Revoke(context.Background(), model.AssetSPX, "manual halt")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRevoked, st.Status)
	assert.Equal(t, "HALTED", st.SystemMode)
	require.NotNil(t, st.RevokedAt)
	assert.Equal(t, start.Add(time.Minute), *st.RevokedAt)
}

func TestApplyConstitution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.m.ApplyConstitution(ctx, model.AssetBTC, "h1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.Transitioned)
	assert.Equal(t, model.StatusSimulation, res.NewStatus)

	res, err = f.m.ApplyConstitution(ctx, model.AssetBTC, "h1")
	require.NoError(t, err)
	assert.False(t, res.Applied, "unchanged hash is a no-op")
	assert.False(t, res.Transitioned)

	_, err = f.m.ForceApply(ctx, model.AssetBTC, "")
	require.NoError(t, err)

	res, err = f.m.ApplyConstitution(ctx, model.AssetBTC, "h1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.StatusApplied, res.NewStatus)

	res, err = f.m.ApplyConstitution(ctx, model.AssetBTC, "h2")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.Transitioned)
	assert.Equal(t, model.StatusWarmup, res.NewStatus)
	assert.Equal(t, "constitution changed", res.Reason)
	assert.Equal(t, 0, res.State.LiveSamples)
	assert.Equal(t, "h2", res.State.ConstitutionHash)
	assert.Equal(t, 1, countType(f.events(t, model.AssetBTC), model.EventConstitutionChanged))
}

func TestUpdateDrift_AutoRevokeAndRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.ForceApply(ctx, model.AssetBTC, "")
	require.NoError(t, err)

	res, err := f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityWarn)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.False(t, res.Revoked)
	assert.Equal(t, model.StatusApplied, res.Status)

	res, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical)
	require.NoError(t, err)
	assert.True(t, res.Revoked)
	assert.Equal(t, model.StatusRevoked, res.Status)
	assert.Equal(t, "critical drift", res.Reason)
	assert.Equal(t, model.SeverityCritical, res.State.DriftSeverity)

	// a second CRITICAL while already revoked does not emit again
	_, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical)
	require.NoError(t, err)

	res, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityOK)
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, model.StatusWarmup, res.Status)
	assert.Equal(t, "drift recovered", res.Reason)
	assert.Equal(t, 0, res.State.LiveSamples)

	_, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityOK)
	require.NoError(t, err)

	evs := f.events(t, model.AssetBTC)
	assert.Equal(t, 1, countType(evs, model.EventAutoRevoked))
	assert.Equal(t, 1, countType(evs, model.EventAutoRecovered))
}

func TestNeverAppliedWithCritical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ops := []func() error{
		func() error { _, err := f.m.ForceApply(ctx, model.AssetBTC, ""); return err },
		func() error { _, err := f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical); return err },
		func() error { _, err := f.m.ForceApply(ctx, model.AssetBTC, ""); return err },
		func() error { _, err := f.m.ForceWarmup(ctx, model.AssetBTC, 1, ""); return err },
		func() error {
			_, err := f.m.IncrementSamples(ctx, model.AssetBTC, 40)
			return err
		},
		func() error { _, err := f.m.Promote(ctx, model.AssetBTC); return err },
		func() error { _, err := f.m.CheckIntegrity(ctx, model.AssetBTC); return err },
	}
	for i, op := range ops {
		require.NoError(t, op(), "op %d", i)
		st, err := f.store.Get(ctx, model.AssetBTC)
		require.NoError(t, err)
		assert.False(t, st.Status == model.StatusApplied && st.DriftSeverity == model.SeverityCritical, "op %d left APPLIED+CRITICAL", i)
		assert.True(t, st.Status.Valid())
		assert.True(t, st.DriftSeverity.Valid())
	}
}

func TestIncrementSamples(t *testing.T) {
	t.Run("rejected outside warmup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.Init(context.Background(), model.AssetBTC)
		require.NoError(t, err)
		_, err = f.m.IncrementSamples(context.Background(), model.AssetBTC, 1)
		assert.True(t, errors.Is(err, ErrNotInWarmup))
	})

	t.Run("reaching threshold promotes once", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		_, err := f.m.ForceWarmup(ctx, model.AssetSPX, 30, "")
		require.NoError(t, err)

		res, err := f.m.IncrementSamples(ctx, model.AssetSPX, 29)
		require.NoError(t, err)
		assert.False(t, res.Promoted)
		assert.True(t, res.Blocked)
		assert.Equal(t, "insufficient live samples: 29/30", res.Reason)
		assert.Equal(t, model.StatusWarmup, res.Status)

		res, err = f.m.IncrementSamples(ctx, model.AssetSPX, 1)
		require.NoError(t, err)
		assert.True(t, res.Promoted)
		assert.Equal(t, 30, res.LiveSamples)
		assert.Equal(t, model.StatusApplied, res.Status)

		_, err = f.m.IncrementSamples(ctx, model.AssetSPX, 1)
		assert.ErrorIs(t, err, ErrNotInWarmup)

		assert.Equal(t, 1, countType(f.events(t, model.AssetSPX), model.EventAutoPromoted))
	})

	t.Run("critical drift blocks promotion", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		_, err := f.m.ForceWarmup(ctx, model.AssetBTC, 30, "")
		require.NoError(t, err)
		_, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical)
		require.NoError(t, err)

		res, err := f.m.IncrementSamples(ctx, model.AssetBTC, 30)
		require.NoError(t, err)
		assert.False(t, res.Promoted)
		assert.Equal(t, "drift severity CRITICAL", res.Reason)
		assert.Equal(t, 30, res.LiveSamples)
	})
}

func TestCheckPromotion_ReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.m.CheckPromotion(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.True(t, res.Blocked)
	assert.Equal(t, "status is SIMULATION, not WARMUP", res.Reason)
	assert.Equal(t, 30, res.Threshold)

	st, err := f.store.Get(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Nil(t, st, "check must not initialize")

	_, err = f.m.ForceWarmup(ctx, model.AssetBTC, 30, "")
	require.NoError(t, err)
	_, _, err = f.store.Update(ctx, model.AssetBTC, func(cur *model.State) (*model.State, []model.Event, error) {
		cur.LiveSamples = 31
		return cur, nil, nil
	})
	require.NoError(t, err)

	res, err = f.m.CheckPromotion(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.False(t, res.Blocked)
	assert.Equal(t, 31, res.LiveSamples)

	st, err = f.store.Get(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWarmup, st.Status)
}

func TestPromote_AppliesSoftFixesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.Update(ctx, model.AssetBTC, func(cur *model.State) (*model.State, []model.Event, error) {
		st := model.NewState(model.AssetBTC, 30, start)
		st.Status = model.StatusWarmup
		st.SystemMode = "SIMULATION" // stale
		st.LiveSamples = 30          // warmupStartedAt missing
		return st, nil, nil
	})
	require.NoError(t, err)

	res, err := f.m.Promote(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	assert.Equal(t, model.StatusApplied, res.State.Status)
	assert.NotNil(t, res.State.WarmupStartedAt)
	assert.Equal(t, "LIVE", res.State.SystemMode)
}

func TestCheckIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.Update(ctx, model.AssetSPX, func(cur *model.State) (*model.State, []model.Event, error) {
		st := model.NewState(model.AssetSPX, 30, start)
		st.Status = model.StatusApplied
		st.SystemMode = "LIVE"
		st.DriftSeverity = model.SeverityCritical
		return st, nil, nil
	})
	require.NoError(t, err)

	res, err := f.m.CheckIntegrity(ctx, model.AssetSPX)
	require.NoError(t, err)
	assert.True(t, res.Report.Valid)
	assert.NotEmpty(t, res.Report.Fixes)
	assert.Equal(t, model.StatusRevoked, res.State.Status)

	evs := f.events(t, model.AssetSPX)
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventIntegrityFix, evs[0].Type)
	assert.Equal(t, model.StatusApplied, evs[0].FromStatus)

	// second pass is clean
	res, err = f.m.CheckIntegrity(ctx, model.AssetSPX)
	require.NoError(t, err)
	assert.True(t, res.Report.Valid)
	assert.Empty(t, res.Report.Fixes)
}

func TestSetPolicy_ChangesThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := model.DefaultPolicy()
	p.PromotionThreshold = 5
	f.m.SetPolicy(p)
	assert.Equal(t, 5, f.m.Policy().PromotionThreshold)

	_, err := f.m.ForceWarmup(ctx, model.AssetBTC, 5, "")
	require.NoError(t, err)
	res, err := f.m.IncrementSamples(ctx, model.AssetBTC, 5)
	require.NoError(t, err)
	assert.True(t, res.Promoted)
}

// BTC scenario: reset, warmup, drift OK, five increments of six samples.
func TestScenario_BTCWarmupToApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.ResetSimulation(ctx, model.AssetBTC, "scenario")
	require.NoError(t, err)
	_, err = f.m.ForceWarmup(ctx, model.AssetBTC, 30, "scenario")
	require.NoError(t, err)
	_, err = f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityOK)
	require.NoError(t, err)

	var last SamplesResult
	for i := 0; i < 5; i++ {
		last, err = f.m.IncrementSamples(ctx, model.AssetBTC, 6)
		require.NoError(t, err)
		if i < 4 {
			assert.False(t, last.Promoted, "increment %d", i)
		}
	}
	assert.True(t, last.Promoted)
	assert.Equal(t, model.StatusApplied, last.Status)
	assert.Equal(t, 30, last.LiveSamples)
}

// BTC scenario: applied model drifts critical and is revoked.
func TestScenario_BTCAppliedThenCritical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.ForceApply(ctx, model.AssetBTC, "scenario")
	require.NoError(t, err)
	res, err := f.m.UpdateDrift(ctx, model.AssetBTC, model.SeverityCritical)
	require.NoError(t, err)
	assert.True(t, res.Revoked)
	assert.Equal(t, model.StatusRevoked, res.Status)
	assert.Equal(t, "HALTED", res.State.SystemMode)
}
