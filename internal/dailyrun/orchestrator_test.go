// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/manager"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
	"github.com/ManuGH/fractal/internal/telemetry"
)

type harness struct {
	o     *Orchestrator
	mgr   *manager.Manager
	st    *store.MemoryStore
	sink  *fakeStorage
	fc    *fakeForecaster
	alert *fakeAlerter
}

func newHarness(t *testing.T, fc *fakeForecaster, cfg Config, hooks ...Hook) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.NewFake(time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC))
	m := machine.New(machine.Deps{Store: st, Clock: clk, Logger: zerolog.Nop(), Policy: model.DefaultPolicy()})
	mgr := manager.New(manager.Deps{Machine: m, Audit: audit.NewLoggerWith(zerolog.Nop())})
	h := &harness{mgr: mgr, st: st, sink: &fakeStorage{}, fc: fc, alert: &fakeAlerter{}}
	o, err := New(Deps{
		Manager:    mgr,
		Storage:    h.sink,
		Forecaster: fc,
		Alerter:    h.alert,
		Hooks:      hooks,
		Clock:      clk,
		Logger:     zerolog.Nop(),
		Config:     cfg,
	})
	require.NoError(t, err)
	h.o = o
	return h
}

func stepNamesOf(res *model.RunResult) []string {
	out := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		out = append(out, s.Name)
	}
	return out
}

func stepByName(t *testing.T, res *model.RunResult, name string) model.StepResult {
	t.Helper()
	for _, s := range res.Steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("step %s not found", name)
	return model.StepResult{}
}

func TestNew_MissingDeps(t *testing.T) {
	_, err := New(Deps{})
	require.ErrorIs(t, err, ErrMissingDeps)
}

func TestRun_FreshAssetStartsWarmup(t *testing.T) {
	h := newHarness(t, &fakeForecaster{hits: 3}, Config{})

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, "")
	require.NoError(t, err)

	assert.Equal(t, StepNames(), stepNamesOf(res))
	require.Len(t, res.Steps, 11)
	for _, s := range res.Steps {
		assert.True(t, s.OK, "step %s: %v", s.Name, s.Details)
		assert.GreaterOrEqual(t, s.Ms, int64(0))
	}
	assert.Equal(t, model.RunManual, res.Mode)
	assert.Equal(t, model.RunCompleted, res.Status)
	assert.NotEmpty(t, res.RunID)

	require.NotNil(t, res.Lifecycle.Before)
	require.NotNil(t, res.Lifecycle.After)
	assert.Equal(t, model.StatusSimulation, res.Lifecycle.Before.Status)
	assert.Equal(t, model.StatusWarmup, res.Lifecycle.After.Status)
	assert.Equal(t, "SIMULATION→WARMUP", res.Lifecycle.Transition)
	assert.Equal(t, true, stepByName(t, res, StepSnapshotWrite).Details["initialized"])
	assert.Equal(t, true, stepByName(t, res, StepAutoWarmup).Details["started"])
	// warmup started in this run, today's outcomes are not counted
	assert.Equal(t, 0, res.Lifecycle.After.LiveSamples)

	assert.Equal(t, []model.EventType{model.EventInitialized, model.EventWarmupStarted}, h.alert.types())
	require.Len(t, h.sink.snapshots, 1)
	require.Len(t, h.sink.timeline, 1)
	assert.Equal(t, "SIMULATION→WARMUP", h.sink.timeline[0].Transition)

	rec, err := h.st.LastRun(context.Background(), model.AssetBTC)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "DAILY_RUN_COMPLETED", rec.Type)
	assert.Equal(t, res.RunID, rec.Meta.RunID)
	assert.Equal(t, 11, rec.Meta.StepsOK)
	assert.Equal(t, "SIMULATION→WARMUP", rec.Meta.Transition)
}

func TestRun_NoOutcomesSkipsDriftAndWarmup(t *testing.T) {
	h := newHarness(t, &fakeForecaster{}, Config{})

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetSPX, model.RunScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, true, stepByName(t, res, StepDriftCheck).Details["skipped"])
	assert.Equal(t, "no resolved outcomes", stepByName(t, res, StepAutoWarmup).Details["reason"])
	assert.Equal(t, true, stepByName(t, res, StepWarmupProgressWrite).Details["skipped"])
	assert.Empty(t, res.Lifecycle.Transition)
}

func TestRun_WarmupAccumulatesAndPromotes(t *testing.T) {
	h := newHarness(t, &fakeForecaster{hits: 30}, Config{})
	ctx := context.Background()
	_, err := h.mgr.ForceWarmup(ctx, model.AssetBTC, 30, "")
	require.NoError(t, err)

	res, err := h.o.RunDailyPipeline(ctx, model.AssetBTC, model.RunManual)
	require.NoError(t, err)

	progress := stepByName(t, res, StepWarmupProgressWrite)
	assert.Equal(t, 30, progress.Details["added"])
	assert.Equal(t, true, progress.Details["promoted"])
	assert.Equal(t, true, stepByName(t, res, StepAutoPromote).Details["skipped"])
	assert.Equal(t, "WARMUP→APPLIED", res.Lifecycle.Transition)
	assert.Equal(t, model.StatusApplied, res.Lifecycle.After.Status)
	assert.Contains(t, h.alert.types(), model.EventAutoPromoted)
	require.Len(t, h.sink.progress, 1)
	assert.Equal(t, model.StatusApplied, h.sink.progress[0].Status)
}

func TestRun_PromoteBlockedBelowThreshold(t *testing.T) {
	h := newHarness(t, &fakeForecaster{hits: 6}, Config{})
	ctx := context.Background()
	_, err := h.mgr.ForceWarmup(ctx, model.AssetBTC, 30, "")
	require.NoError(t, err)

	res, err := h.o.RunDailyPipeline(ctx, model.AssetBTC, model.RunManual)
	require.NoError(t, err)

	promote := stepByName(t, res, StepAutoPromote)
	assert.True(t, promote.OK)
	assert.Equal(t, false, promote.Details["promoted"])
	assert.Equal(t, true, promote.Details["blocked"])
	assert.Equal(t, "insufficient live samples: 6/30", promote.Details["reason"])
	assert.Equal(t, 6, res.Lifecycle.After.LiveSamples)
}

func TestRun_CriticalDriftRevokesAppliedModel(t *testing.T) {
	h := newHarness(t, &fakeForecaster{misses: 10}, Config{})
	ctx := context.Background()
	applied, err := h.mgr.ForceApply(ctx, model.AssetBTC, "go live")
	require.NoError(t, err)
	require.True(t, applied.Applied)

	res, err := h.o.RunDailyPipeline(ctx, model.AssetBTC, model.RunManual)
	require.NoError(t, err)

	dc := stepByName(t, res, StepDriftCheck)
	assert.Equal(t, model.SeverityCritical, dc.Details["severity"])
	assert.Equal(t, true, dc.Details["revoked"])
	assert.Equal(t, "APPLIED→REVOKED", res.Lifecycle.Transition)
	assert.Equal(t, model.SeverityCritical, res.Lifecycle.After.DriftSeverity)

	h.alert.mu.Lock()
	defer h.alert.mu.Unlock()
	require.NotEmpty(t, h.alert.alerts)
	last := h.alert.alerts[len(h.alert.alerts)-1]
	assert.Equal(t, model.EventAutoRevoked, last.Event.Type)
	assert.Equal(t, "critical", last.Severity)
}

func TestRun_StepFailuresDoNotAbort(t *testing.T) {
	boom := func(context.Context, HookContext) error { panic("boom") }
	h := newHarness(t, &fakeForecaster{hits: 2}, Config{}, boom)
	h.sink.snapshotErr = errors.New("disk full")

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.NoError(t, err)
	require.Len(t, res.Steps, 11)
	assert.Equal(t, model.RunDegraded, res.Status)

	snap := stepByName(t, res, StepSnapshotWrite)
	assert.False(t, snap.OK)
	assert.Equal(t, "write snapshot: disk full", snap.Details["error"])

	hooks := stepByName(t, res, StepLifecycleHooks)
	assert.False(t, hooks.OK)
	assert.Equal(t, "panic: boom", hooks.Details["error"])

	assert.Equal(t, 9, res.StepsOK())
	assert.NotNil(t, res.Lifecycle.After)
}

func TestRun_HooksSeeTransition(t *testing.T) {
	var seen HookContext
	hook := func(_ context.Context, hc HookContext) error {
		seen = hc
		return nil
	}
	h := newHarness(t, &fakeForecaster{hits: 1}, Config{}, hook)

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.NoError(t, err)
	assert.Equal(t, "SIMULATION→WARMUP", seen.Transition)
	assert.Equal(t, res.RunID, seen.RunID)
	assert.Equal(t, "SIMULATION→WARMUP", stepByName(t, res, StepLifecycleHooks).Details["transition"])
}

func TestRun_AlertFailureKeepsLifecycleChange(t *testing.T) {
	h := newHarness(t, &fakeForecaster{hits: 2}, Config{})
	h.alert.err = errors.New("redis down")

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.NoError(t, err)
	alerts := stepByName(t, res, StepAlertsDispatch)
	assert.False(t, alerts.OK)
	assert.Equal(t, 2, alerts.Details["failed"])

	st, err := h.mgr.Get(context.Background(), model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWarmup, st.Status)
}

func TestRun_ConcurrentRunsAreSerialized(t *testing.T) {
	h := newHarness(t, &fakeForecaster{hits: 6}, Config{})
	ctx := context.Background()
	_, err := h.mgr.ForceWarmup(ctx, model.AssetBTC, 30, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.RunResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.o.RunDailyPipeline(ctx, model.AssetBTC, model.RunManual)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])

	first, second := results[0], results[1]
	if first.Lifecycle.Before.LiveSamples > second.Lifecycle.Before.LiveSamples {
		first, second = second, first
	}
	assert.Equal(t, 0, first.Lifecycle.Before.LiveSamples)
	assert.Equal(t, 6, first.Lifecycle.After.LiveSamples)
	assert.Equal(t, 12, second.Lifecycle.After.LiveSamples)
	if diff := cmp.Diff(first.Lifecycle.After, second.Lifecycle.Before); diff != "" {
		t.Fatalf("second run did not start from the first run's result (-first.after +second.before):\n%s", diff)
	}
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, &fakeForecaster{hits: 1, onResolve: cancel}, Config{})

	res, err := h.o.RunDailyPipeline(ctx, model.AssetBTC, model.RunManual)
	require.ErrorIs(t, err, ErrRunCancelled)
	require.NotNil(t, res)
	assert.Equal(t, model.RunCancelled, res.Status)
	assert.Equal(t, []string{StepSnapshotWrite, StepOutcomeResolve}, stepNamesOf(res))
	assert.True(t, res.Steps[1].OK)
	assert.NotNil(t, res.Lifecycle.Before)
	assert.Nil(t, res.Lifecycle.After)
	assert.Empty(t, res.Lifecycle.Transition)

	rec, err := h.st.LastRun(context.Background(), model.AssetBTC)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "DAILY_RUN_CANCELLED", rec.Type)
}

func TestRun_TimeoutFailsRun(t *testing.T) {
	h := newHarness(t, &fakeForecaster{marketDelay: 80 * time.Millisecond}, Config{Timeout: 30 * time.Millisecond})

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.ErrorIs(t, err, ErrRunTimeout)
	require.NotNil(t, res)
	assert.Equal(t, model.RunFailed, res.Status)
	assert.Equal(t, []string{StepSnapshotWrite}, stepNamesOf(res))
	assert.True(t, res.Steps[0].OK, "a step that started runs to completion")
	assert.Nil(t, res.Lifecycle.After)
	assert.Contains(t, res.Error, "daily run timed out")
}

func TestRun_InvalidAsset(t *testing.T) {
	h := newHarness(t, &fakeForecaster{}, Config{})
	res, err := h.o.RunDailyPipeline(context.Background(), "ETH", model.RunManual)
	require.ErrorIs(t, err, model.ErrInvalidAsset)
	assert.Nil(t, res)
}

func TestRun_BusyAsset(t *testing.T) {
	h := newHarness(t, &fakeForecaster{}, Config{Timeout: 20 * time.Millisecond})
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.mgr.WithAsset(context.Background(), model.AssetBTC, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.ErrorIs(t, err, manager.ErrAssetBusy)
	assert.Nil(t, res)

	close(release)
	<-done
}

func TestAlertFor(t *testing.T) {
	a := AlertFor("run-1", model.Event{
		Type:       model.EventAutoRevoked,
		ModelID:    model.AssetBTC,
		FromStatus: model.StatusApplied,
		ToStatus:   model.StatusRevoked,
		Reason:     "critical drift",
	})
	assert.Equal(t, "critical", a.Severity)
	assert.Equal(t, "BTC AUTO_REVOKED: APPLIED→REVOKED (critical drift)", a.Message)

	b := AlertFor("run-1", model.Event{Type: model.EventInitialized, ModelID: model.AssetSPX, ToStatus: model.StatusSimulation})
	assert.Equal(t, "info", b.Severity)
	assert.Equal(t, "SPX INITIALIZED: now SIMULATION", b.Message)
}

func TestRun_IntegrityFixFromLastStepIsAlerted(t *testing.T) {
	var st *store.MemoryStore
	// Corrupt the state after drift handling so only the final guard sees it.
	corrupt := func(ctx context.Context, hc HookContext) error {
		_, _, err := st.Update(ctx, hc.Asset, func(cur *model.State) (*model.State, []model.Event, error) {
			next := cur.Clone()
			next.Status = model.StatusApplied
			next.SystemMode = model.StatusApplied.SystemMode()
			next.AppliedAt = model.TimePtr(cur.UpdatedAt)
			next.DriftSeverity = model.SeverityCritical
			return next, nil, nil
		})
		return err
	}
	h := newHarness(t, &fakeForecaster{}, Config{}, corrupt)
	st = h.st

	res, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.NoError(t, err)

	guard := stepByName(t, res, StepIntegrityGuard)
	require.True(t, guard.OK, "%v", guard.Details)
	assert.Contains(t, h.alert.types(), model.EventIntegrityFix)

	after, err := h.mgr.Machine().Get(context.Background(), model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRevoked, after.Status)
}

func TestRun_FailedStepSpansCarryErrorClass(t *testing.T) {
	boom := func(context.Context, HookContext) error { panic("boom") }
	h := newHarness(t, &fakeForecaster{hits: 1}, Config{}, boom)
	h.sink.snapshotErr = errors.New("disk full")
	rec := tracetest.NewSpanRecorder()
	h.o.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	_, err := h.o.RunDailyPipeline(context.Background(), model.AssetBTC, model.RunManual)
	require.NoError(t, err)

	classes := map[string]string{}
	for _, sp := range rec.Ended() {
		for _, kv := range sp.Attributes() {
			if kv.Key == attribute.Key(telemetry.ErrorTypeKey) {
				classes[sp.Name()] = kv.Value.AsString()
			}
		}
	}
	assert.Equal(t, map[string]string{
		"dailyrun.step." + StepSnapshotWrite:  "step_error",
		"dailyrun.step." + StepLifecycleHooks: "panic",
	}, classes)
}
