// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dailyrun advances each model's lifecycle once per cycle. A run
// executes a fixed sequence of steps for one asset while holding that
// asset's lock, records every step's outcome and persists the run.
package dailyrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/drift"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/manager"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
	"github.com/ManuGH/fractal/internal/telemetry"
)

const tracerName = "github.com/ManuGH/fractal/internal/dailyrun"

var (
	ErrRunTimeout   = errors.New("daily run timed out")
	ErrRunCancelled = errors.New("daily run cancelled")
	ErrMissingDeps  = errors.New("dailyrun: missing dependency")
)

type Config struct {
	// Timeout bounds a whole run once the asset lock is held. It also
	// bounds how long a run waits for the lock.
	Timeout time.Duration
	// StepTimeout bounds each step. Steps do not observe run cancellation.
	StepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second, StepTimeout: 15 * time.Second}
}

type Deps struct {
	Manager    *manager.Manager
	Storage    Storage
	Forecaster Forecaster
	Alerter    Alerter
	Hooks      []Hook
	Clock      clock.Clock
	Logger     zerolog.Logger
	Config     Config
	// NewRunID defaults to random UUIDs.
	NewRunID func() string
}

type Orchestrator struct {
	manager    *manager.Manager
	monitor    *drift.Monitor
	storage    Storage
	forecaster Forecaster
	alerter    Alerter
	hooks      []Hook
	clock      clock.Clock
	logger     zerolog.Logger
	tracer     trace.Tracer
	cfg        Config
	newRunID   func() string
}

func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Manager == nil:
		return nil, fmt.Errorf("%w: manager", ErrMissingDeps)
	case deps.Storage == nil:
		return nil, fmt.Errorf("%w: storage", ErrMissingDeps)
	case deps.Forecaster == nil:
		return nil, fmt.Errorf("%w: forecaster", ErrMissingDeps)
	case deps.Alerter == nil:
		return nil, fmt.Errorf("%w: alerter", ErrMissingDeps)
	}

	o := &Orchestrator{
		manager:    deps.Manager,
		monitor:    drift.NewMonitor(deps.Manager.Machine()),
		storage:    deps.Storage,
		forecaster: deps.Forecaster,
		alerter:    deps.Alerter,
		hooks:      append([]Hook(nil), deps.Hooks...),
		clock:      deps.Clock,
		logger:     deps.Logger,
		tracer:     telemetry.Tracer(tracerName),
		cfg:        deps.Config,
		newRunID:   deps.NewRunID,
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if o.logger.GetLevel() == zerolog.Disabled {
		o.logger = log.WithComponent("dailyrun")
	}
	def := DefaultConfig()
	if o.cfg.Timeout <= 0 {
		o.cfg.Timeout = def.Timeout
	}
	if o.cfg.StepTimeout <= 0 {
		o.cfg.StepTimeout = def.StepTimeout
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	return o, nil
}

// RunDailyPipeline executes every step for asset and returns the run.
//
// The returned error is non-nil when the asset lock could not be taken
// (no result), or when the run timed out, was cancelled or could not read
// or persist its records (partial result).
func (o *Orchestrator) RunDailyPipeline(ctx context.Context, asset model.Asset, mode model.RunMode) (*model.RunResult, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAsset, asset)
	}
	if mode == "" {
		mode = model.RunManual
	}
	runID := o.newRunID()
	ctx = log.ContextWithRunID(ctx, runID)

	ctx, span := o.tracer.Start(ctx, "dailyrun.run",
		trace.WithAttributes(telemetry.RunAttributes(string(asset), runID, string(mode))...))
	defer span.End()

	waitCtx, cancelWait := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancelWait()

	var (
		res    *model.RunResult
		runErr error
	)
	lockErr := o.manager.WithAsset(waitCtx, asset, func(context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
		res, runErr = o.execute(runCtx, &run{o: o, asset: asset, mode: mode, runID: runID})
		return nil
	})
	if lockErr != nil {
		span.SetAttributes(telemetry.ErrorAttributes("asset_lock")...)
		span.RecordError(lockErr)
		span.SetStatus(codes.Error, lockErr.Error())
		return nil, lockErr
	}

	var tr [2]string
	if res.Lifecycle.Before != nil && res.Lifecycle.After != nil {
		tr = [2]string{string(res.Lifecycle.Before.Status), string(res.Lifecycle.After.Status)}
	}
	span.SetAttributes(telemetry.RunResultAttributes(string(res.Status), res.StepsOK(), res.DurationMs, tr)...)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return res, runErr
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*model.RunResult, error) {
	t0 := time.Now()
	r.res = &model.RunResult{
		RunID:     r.runID,
		Asset:     r.asset,
		Mode:      r.mode,
		StartedAt: o.clock.Now(),
		Steps:     make([]model.StepResult, 0, len(stepNames)),
	}

	if err := o.captureBefore(ctx, r); err != nil {
		return o.finish(ctx, r, t0, model.RunFailed, err)
	}

	for _, s := range r.pipeline() {
		if err := ctx.Err(); err != nil {
			return o.interrupt(ctx, r, t0, err)
		}
		r.res.Steps = append(r.res.Steps, o.runStep(ctx, r, s))
	}

	actx, cancel := o.detached(ctx)
	defer cancel()
	after, err := r.current(actx)
	if err != nil {
		return o.finish(ctx, r, t0, model.RunFailed, fmt.Errorf("read final state: %w", err))
	}
	r.res.Lifecycle.After = after
	r.res.Lifecycle.Transition = model.FormatTransition(r.res.Lifecycle.Before.Status, after.Status)

	status := model.RunCompleted
	if r.res.StepsOK() < len(r.res.Steps) {
		status = model.RunDegraded
	}
	return o.finish(ctx, r, t0, status, nil)
}

// captureBefore records the event watermark and the starting state,
// initialising the asset if it has none.
func (o *Orchestrator) captureBefore(ctx context.Context, r *run) error {
	bctx, cancel := o.detached(ctx)
	defer cancel()

	mach := o.manager.Machine()
	seq, err := mach.Store().LastEventSeq(bctx)
	if err != nil {
		return fmt.Errorf("read event sequence: %w", err)
	}
	r.startSeq = seq

	st, err := mach.Get(bctx, r.asset)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if st == nil {
		if st, err = mach.Init(bctx, r.asset); err != nil {
			return fmt.Errorf("init state: %w", err)
		}
		r.initialized = true
	}
	r.res.Lifecycle.Before = st
	return nil
}

func (o *Orchestrator) interrupt(ctx context.Context, r *run, t0 time.Time, cause error) (*model.RunResult, error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		err := fmt.Errorf("%w after %s (%d of %d steps ran)", ErrRunTimeout, o.cfg.Timeout, len(r.res.Steps), len(stepNames))
		return o.finish(ctx, r, t0, model.RunFailed, err)
	}
	err := fmt.Errorf("%w (%d of %d steps ran)", ErrRunCancelled, len(r.res.Steps), len(stepNames))
	return o.finish(ctx, r, t0, model.RunCancelled, err)
}

func (o *Orchestrator) finish(ctx context.Context, r *run, t0 time.Time, status model.RunStatus, runErr error) (*model.RunResult, error) {
	res := r.res
	res.Status = status
	res.FinishedAt = o.clock.Now()
	res.DurationMs = time.Since(t0).Milliseconds()
	if runErr != nil {
		res.Error = runErr.Error()
	}

	sctx, cancel := o.detached(ctx)
	defer cancel()
	if err := o.manager.Store().SaveRun(sctx, model.NewRunRecord(res)); err != nil {
		err = fmt.Errorf("save run record: %w", err)
		res.Status = model.RunFailed
		runErr = errors.Join(runErr, err)
		res.Error = runErr.Error()
	}

	metrics.RecordDailyRun(string(res.Asset), string(res.Mode), string(res.Status),
		time.Since(t0).Seconds(), res.FinishedAt.Unix())

	l := log.WithContext(ctx, o.logger)
	evt := l.Info()
	if res.Status == model.RunFailed || res.Status == model.RunCancelled {
		evt = l.Warn()
	}
	evt.
		Str(log.FieldEvent, "dailyrun.finished").
		Str(log.FieldAsset, string(res.Asset)).
		Str(log.FieldMode, string(res.Mode)).
		Str(log.FieldStatus, string(res.Status)).
		Int("steps_ok", res.StepsOK()).
		Int("steps_run", len(res.Steps)).
		Str("transition", res.Lifecycle.Transition).
		Int64(log.FieldDurationMs, res.DurationMs).
		AnErr("error", runErr).
		Msg("daily run finished")

	return res, runErr
}

// runStep executes one step on a context detached from run cancellation
// and converts errors and panics into a failed StepResult.
func (o *Orchestrator) runStep(ctx context.Context, r *run, s step) (sr model.StepResult) {
	sctx, cancel := o.detached(ctx)
	defer cancel()
	sctx, span := o.tracer.Start(sctx, "dailyrun.step."+s.name)

	sr.Name = s.name
	t0 := time.Now()
	errClass := "step_error"
	defer func() {
		if p := recover(); p != nil {
			sr.OK = false
			sr.Details = map[string]any{"error": fmt.Sprintf("panic: %v", p)}
			errClass = "panic"
		}
		elapsed := time.Since(t0)
		sr.Ms = elapsed.Milliseconds()

		span.SetAttributes(telemetry.StepAttributes(s.name, sr.OK)...)
		if !sr.OK {
			span.SetAttributes(telemetry.ErrorAttributes(errClass)...)
			span.SetStatus(codes.Error, fmt.Sprint(sr.Details["error"]))
		}
		span.End()
		metrics.RecordStep(s.name, sr.OK, elapsed.Seconds())

		l := log.WithContext(ctx, o.logger)
		if !sr.OK {
			l.Warn().
				Str(log.FieldEvent, "dailyrun.step_failed").
				Str(log.FieldAsset, string(r.asset)).
				Str(log.FieldStep, s.name).
				Interface("error", sr.Details["error"]).
				Int64(log.FieldDurationMs, sr.Ms).
				Msg("daily run step failed")
			return
		}
		l.Debug().
			Str(log.FieldEvent, "dailyrun.step").
			Str(log.FieldAsset, string(r.asset)).
			Str(log.FieldStep, s.name).
			Int64(log.FieldDurationMs, sr.Ms).
			Msg("daily run step ok")
	}()

	details, err := s.fn(sctx)
	if details == nil {
		details = map[string]any{}
	}
	if err != nil {
		details["error"] = err.Error()
		sr.Details = details
		return sr
	}
	sr.OK = true
	sr.Details = details
	return sr
}

func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StepTimeout)
}
