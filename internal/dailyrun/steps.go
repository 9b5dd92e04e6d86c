// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/drift"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
)

// Step names in execution order.
const (
	StepSnapshotWrite       = "SNAPSHOT_WRITE"
	StepOutcomeResolve      = "OUTCOME_RESOLVE"
	StepLiveSampleUpdate    = "LIVE_SAMPLE_UPDATE"
	StepDriftCheck          = "DRIFT_CHECK"
	StepAutoWarmup          = "AUTO_WARMUP"
	StepLifecycleHooks      = "LIFECYCLE_HOOKS"
	StepWarmupProgressWrite = "WARMUP_PROGRESS_WRITE"
	StepAutoPromote         = "AUTO_PROMOTE"
	StepIntelTimelineWrite  = "INTEL_TIMELINE_WRITE"
	StepAlertsDispatch      = "ALERTS_DISPATCH"
	StepIntegrityGuard      = "INTEGRITY_GUARD"
)

var stepNames = []string{
	StepSnapshotWrite,
	StepOutcomeResolve,
	StepLiveSampleUpdate,
	StepDriftCheck,
	StepAutoWarmup,
	StepLifecycleHooks,
	StepWarmupProgressWrite,
	StepAutoPromote,
	StepIntelTimelineWrite,
	StepAlertsDispatch,
	StepIntegrityGuard,
}

// StepNames returns the step order of every run.
func StepNames() []string {
	return append([]string(nil), stepNames...)
}

// defaultLookback is how far OUTCOME_RESOLVE looks when an asset has no
// previous run.
const defaultLookback = 24 * time.Hour

type step struct {
	name string
	fn   func(ctx context.Context) (map[string]any, error)
}

// run carries what earlier steps learned to later ones.
type run struct {
	o     *Orchestrator
	asset model.Asset
	mode  model.RunMode
	runID string
	res   *model.RunResult

	startSeq      int64
	alertedSeq    int64
	initialized   bool
	outcomes      []model.Outcome
	stats         drift.Stats
	warmupStarted bool
}

func (r *run) pipeline() []step {
	return []step{
		{StepSnapshotWrite, r.snapshotWrite},
		{StepOutcomeResolve, r.outcomeResolve},
		{StepLiveSampleUpdate, r.liveSampleUpdate},
		{StepDriftCheck, r.driftCheck},
		{StepAutoWarmup, r.autoWarmup},
		{StepLifecycleHooks, r.lifecycleHooks},
		{StepWarmupProgressWrite, r.warmupProgressWrite},
		{StepAutoPromote, r.autoPromote},
		{StepIntelTimelineWrite, r.intelTimelineWrite},
		{StepAlertsDispatch, r.alertsDispatch},
		{StepIntegrityGuard, r.integrityGuard},
	}
}

func (r *run) machine() *machine.Machine { return r.o.manager.Machine() }

func (r *run) current(ctx context.Context) (*model.State, error) {
	st, err := r.machine().Get(ctx, r.asset)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("no lifecycle state for %s", r.asset)
	}
	return st, nil
}

// newEvents returns the events appended since the run started, oldest first.
func (r *run) newEvents(ctx context.Context) ([]model.Event, error) {
	return r.eventsAfter(ctx, r.startSeq)
}

// eventsAfter returns this asset's events with a seq above after, oldest
// first.
func (r *run) eventsAfter(ctx context.Context, after int64) ([]model.Event, error) {
	evs, err := r.machine().Store().Events(ctx, store.EventQuery{Asset: r.asset, AfterSeq: after})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs, nil
}

func (r *run) snapshotWrite(ctx context.Context) (map[string]any, error) {
	details := map[string]any{"initialized": r.initialized}
	st, err := r.current(ctx)
	if err != nil {
		return details, err
	}
	details["status"] = st.Status

	market, err := r.o.forecaster.MarketSnapshot(ctx, r.asset)
	if err != nil {
		return details, fmt.Errorf("market snapshot: %w", err)
	}
	details["price"] = market.Price

	snap := Snapshot{RunID: r.runID, Asset: r.asset, TakenAt: r.o.clock.Now(), State: st, Market: market}
	if err := r.o.storage.WriteSnapshot(ctx, r.asset, snap); err != nil {
		return details, fmt.Errorf("write snapshot: %w", err)
	}
	return details, nil
}

func (r *run) outcomeResolve(ctx context.Context) (map[string]any, error) {
	since := r.o.clock.Now().Add(-defaultLookback)
	last, err := r.machine().Store().LastRun(ctx, r.asset)
	if err != nil {
		return nil, fmt.Errorf("read last run: %w", err)
	}
	if last != nil {
		since = last.TS
	}

	outs, err := r.o.forecaster.ResolveOutcomes(ctx, r.asset, since)
	if err != nil {
		return map[string]any{"since": since}, fmt.Errorf("resolve outcomes: %w", err)
	}
	r.outcomes = outs
	return map[string]any{"since": since, "resolved": len(outs)}, nil
}

func (r *run) liveSampleUpdate(context.Context) (map[string]any, error) {
	r.stats = drift.Aggregate(r.outcomes)
	return map[string]any{
		"count":      r.stats.Count,
		"hits":       r.stats.Hits,
		"hitRate":    r.stats.HitRate,
		"meanReturn": r.stats.MeanReturn,
	}, nil
}

func (r *run) driftCheck(ctx context.Context) (map[string]any, error) {
	if r.stats.Count == 0 {
		return map[string]any{"skipped": true, "reason": "no resolved outcomes"}, nil
	}
	sev, deltas := drift.EvaluatorFromPolicy(r.machine().Policy()).Classify(r.stats)
	details := map[string]any{"severity": sev}
	if deltas.HitRate != nil {
		details["deltaHitRate"] = *deltas.HitRate
	}
	if deltas.Sharpe != nil {
		details["deltaSharpe"] = *deltas.Sharpe
	}

	res, err := r.o.monitor.Update(ctx, r.asset, string(sev), deltas)
	if err != nil {
		return details, err
	}
	details["previous"] = res.Previous
	details["revoked"] = res.Revoked
	details["recovered"] = res.Recovered
	details["status"] = res.Status
	return details, nil
}

func (r *run) autoWarmup(ctx context.Context) (map[string]any, error) {
	st, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	p := r.machine().Policy()

	var skip string
	switch {
	case st.Status != model.StatusSimulation:
		skip = fmt.Sprintf("status is %s, not SIMULATION", st.Status)
	case !p.AutoWarmup:
		skip = "auto warmup disabled"
	case st.DriftSeverity != model.SeverityOK:
		skip = fmt.Sprintf("drift severity %s", st.DriftSeverity)
	case r.stats.Count == 0:
		skip = "no resolved outcomes"
	}
	if skip != "" {
		return map[string]any{"started": false, "reason": skip}, nil
	}

	reason := fmt.Sprintf("auto warmup: %d outcomes resolved with drift OK", r.stats.Count)
	if _, err := r.machine().ForceWarmup(ctx, r.asset, p.WarmupTargetDays, reason); err != nil {
		return map[string]any{"started": false, "reason": reason}, err
	}
	r.warmupStarted = true
	return map[string]any{"started": true, "reason": reason, "targetDays": p.WarmupTargetDays}, nil
}

func (r *run) lifecycleHooks(ctx context.Context) (map[string]any, error) {
	st, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	hc := HookContext{
		RunID:      r.runID,
		Asset:      r.asset,
		Before:     r.res.Lifecycle.Before.Clone(),
		Current:    st,
		Transition: model.FormatTransition(r.res.Lifecycle.Before.Status, st.Status),
	}
	details := map[string]any{"hooks": len(r.o.hooks)}
	if hc.Transition != "" {
		details["transition"] = hc.Transition
	}

	var errs []error
	for i, h := range r.o.hooks {
		if err := h(ctx, hc); err != nil {
			errs = append(errs, fmt.Errorf("hook %d: %w", i, err))
		}
	}
	return details, errors.Join(errs...)
}

func (r *run) warmupProgressWrite(ctx context.Context) (map[string]any, error) {
	st, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if st.Status != model.StatusWarmup {
		return map[string]any{"skipped": true, "reason": fmt.Sprintf("status is %s, not WARMUP", st.Status)}, nil
	}

	details := map[string]any{"added": 0}
	switch {
	case r.warmupStarted:
		details["reason"] = "warmup started this run"
	case r.stats.Count >= 1:
		res, err := r.machine().IncrementSamples(ctx, r.asset, r.stats.Count)
		if err != nil {
			return details, err
		}
		details["added"] = r.stats.Count
		details["promoted"] = res.Promoted
		st = res.State
	default:
		details["reason"] = "no resolved outcomes"
	}
	details["liveSamples"] = st.LiveSamples

	if err := r.o.storage.WriteProgress(ctx, r.asset, st); err != nil {
		return details, fmt.Errorf("write progress: %w", err)
	}
	return details, nil
}

func (r *run) autoPromote(ctx context.Context) (map[string]any, error) {
	st, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if st.Status != model.StatusWarmup {
		return map[string]any{
			"promoted": false,
			"blocked":  false,
			"skipped":  true,
			"reason":   fmt.Sprintf("status is %s, not WARMUP", st.Status),
		}, nil
	}

	res, err := r.machine().Promote(ctx, r.asset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"promoted":    res.Promoted,
		"blocked":     res.Blocked,
		"reason":      res.Reason,
		"liveSamples": res.LiveSamples,
		"threshold":   res.Threshold,
	}, nil
}

func (r *run) intelTimelineWrite(ctx context.Context) (map[string]any, error) {
	st, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := r.newEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	entry := TimelineEntry{
		RunID:         r.runID,
		Asset:         r.asset,
		TS:            r.o.clock.Now(),
		Mode:          r.mode,
		Status:        st.Status,
		Transition:    model.FormatTransition(r.res.Lifecycle.Before.Status, st.Status),
		LiveSamples:   st.LiveSamples,
		DriftSeverity: st.DriftSeverity,
		Resolved:      r.stats.Count,
		HitRate:       r.stats.HitRate,
		StepsOK:       r.res.StepsOK(),
		StepsRun:      len(r.res.Steps),
	}
	for _, ev := range evs {
		entry.Events = append(entry.Events, ev.Type)
	}

	details := map[string]any{"events": len(entry.Events), "status": entry.Status}
	if entry.Transition != "" {
		details["transition"] = entry.Transition
	}
	if err := r.o.storage.WriteTimeline(ctx, r.asset, entry); err != nil {
		return details, fmt.Errorf("write timeline: %w", err)
	}
	return details, nil
}

func (r *run) alertsDispatch(ctx context.Context) (map[string]any, error) {
	return r.dispatchPending(ctx)
}

// dispatchPending alerts every event newer than the last one handed to the
// alerter in this run. Failed deliveries are not retried.
func (r *run) dispatchPending(ctx context.Context) (map[string]any, error) {
	evs, err := r.eventsAfter(ctx, max(r.startSeq, r.alertedSeq))
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var errs []error
	for _, ev := range evs {
		if err := r.o.alerter.Dispatch(ctx, AlertFor(r.runID, ev)); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", ev.Seq, err))
		}
		r.alertedSeq = max(r.alertedSeq, ev.Seq)
	}
	details := map[string]any{
		"events":     len(evs),
		"dispatched": len(evs) - len(errs),
		"failed":     len(errs),
	}
	if len(errs) > 0 {
		return details, fmt.Errorf("%d of %d alerts failed: %w", len(errs), len(evs), errors.Join(errs...))
	}
	return details, nil
}

func (r *run) integrityGuard(ctx context.Context) (map[string]any, error) {
	res, err := r.machine().CheckIntegrity(ctx, r.asset)
	if err != nil {
		return nil, err
	}
	details := map[string]any{"valid": res.Report.Valid, "fixes": res.Report.Fixes}
	// Fixes made here land after ALERTS_DISPATCH; alert them now.
	sent, aerr := r.dispatchPending(ctx)
	if n, _ := sent["events"].(int); n > 0 {
		details["alerts"] = sent
	}
	if aerr != nil {
		return details, aerr
	}
	if !res.Report.Valid {
		details["violations"] = res.Report.Violations
		return details, fmt.Errorf("integrity violations: %s", strings.Join(res.Report.Violations, "; "))
	}
	return details, nil
}
