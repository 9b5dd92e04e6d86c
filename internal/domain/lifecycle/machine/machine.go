// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package machine is the lifecycle state machine. It validates and
// applies every state change of a model, keeps the structural invariants
// and emits exactly one event per accepted transition.
//
// Every operation is one atomic store update. The machine holds no
// locks of its own; long-running callers serialize per asset upstream.
package machine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
)

// Deps are the collaborators of a Machine.
type Deps struct {
	Store  store.Store
	Clock  clock.Clock
	Logger zerolog.Logger
	Policy model.Policy
}

type Machine struct {
	store  store.Store
	clock  clock.Clock
	logger zerolog.Logger
	policy atomic.Pointer[model.Policy]
}

func New(deps Deps) *Machine {
	m := &Machine{
		store:  deps.Store,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.logger.GetLevel() == zerolog.Disabled {
		m.logger = log.WithComponent("lifecycle")
	}
	p := deps.Policy
	if p.PromotionThreshold <= 0 {
		p = model.DefaultPolicy()
	}
	m.policy.Store(&p)
	return m
}

// Policy returns the active policy.
func (m *Machine) Policy() model.Policy {
	return *m.policy.Load()
}

// SetPolicy swaps the active policy. In-flight operations finish with the
// policy they started with.
func (m *Machine) SetPolicy(p model.Policy) {
	m.policy.Store(&p)
	m.logger.Info().
		Str(log.FieldEvent, "lifecycle.policy_updated").
		Int("promotion_threshold", p.PromotionThreshold).
		Int("warmup_target_days", p.WarmupTargetDays).
		Bool("auto_warmup", p.AutoWarmup).
		Msg("lifecycle policy updated")
}

// Store exposes the backing store for read paths (events, runs).
func (m *Machine) Store() store.Store {
	return m.store
}

func (m *Machine) now() time.Time {
	return m.clock.Now()
}

// Get returns the current state, or nil when the asset was never initialized.
func (m *Machine) Get(ctx context.Context, asset model.Asset) (*model.State, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	return m.store.Get(ctx, asset)
}

// List returns all initialized states ordered by asset.
func (m *Machine) List(ctx context.Context) ([]*model.State, error) {
	return m.store.List(ctx)
}

// Init creates the asset at SIMULATION if absent. It is idempotent and
// returns the current state.
func (m *Machine) Init(ctx context.Context, asset model.Asset) (*model.State, error) {
	return m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		return nil, nil
	})
}

// mutateFunc edits st in place and returns the events it caused. st is
// never nil: absent assets are initialized first.
type mutateFunc func(st *model.State, now time.Time) ([]model.Event, error)

// mutate runs fn inside one store update. A state that ends up unchanged
// and without events is not rewritten.
func (m *Machine) mutate(ctx context.Context, asset model.Asset, fn mutateFunc) (*model.State, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	pol := m.Policy()

	st, events, err := m.store.Update(ctx, asset, func(cur *model.State) (*model.State, []model.Event, error) {
		now := m.now()
		var events []model.Event
		created := false
		if cur == nil {
			cur = model.NewState(asset, pol.WarmupTargetDays, now)
			cur.LastTransitionReason = ReasonInitialized
			events = append(events, model.Event{
				Type:      model.EventInitialized,
				ModelID:   asset,
				ToStatus:  cur.Status,
				Reason:    ReasonInitialized,
				Timestamp: now,
			})
			created = true
		}
		before := *cur

		evs, err := fn(cur, now)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, evs...)

		if !created && len(events) == 0 && statesEqual(&before, cur) {
			return nil, nil, nil
		}
		cur.UpdatedAt = now
		return cur, events, nil
	})
	if err != nil {
		return nil, err
	}

	m.observe(ctx, st, events)
	return st, nil
}

func (m *Machine) observe(ctx context.Context, st *model.State, events []model.Event) {
	l := log.WithContext(ctx, m.logger)
	for _, ev := range events {
		metrics.RecordTransition(string(ev.ModelID), string(ev.FromStatus), string(ev.ToStatus), string(ev.Type))
		logEv := l.Info()
		if ev.Type.Critical() {
			logEv = l.Warn()
		}
		logEv.
			Str(log.FieldEvent, "lifecycle.transition").
			Str(log.FieldAsset, string(ev.ModelID)).
			Str(log.FieldOldState, string(ev.FromStatus)).
			Str(log.FieldNewState, string(ev.ToStatus)).
			Str("type", string(ev.Type)).
			Str(log.FieldReason, ev.Reason).
			Int64("seq", ev.Seq).
			Msg("lifecycle transition")
	}
	if st != nil {
		metrics.SetLiveSamples(string(st.Asset), st.LiveSamples)
	}
}

func statesEqual(a, b *model.State) bool {
	return a.Status == b.Status &&
		a.SystemMode == b.SystemMode &&
		a.LiveSamples == b.LiveSamples &&
		a.DriftSeverity == b.DriftSeverity &&
		a.ConstitutionHash == b.ConstitutionHash &&
		a.WarmupTargetDays == b.WarmupTargetDays &&
		a.LastTransitionReason == b.LastTransitionReason &&
		timesEqual(a.WarmupStartedAt, b.WarmupStartedAt) &&
		timesEqual(a.AppliedAt, b.AppliedAt) &&
		timesEqual(a.RevokedAt, b.RevokedAt)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// transition applies act to st. The table only rejects edges for the
// automatic actions; callers check preconditions first.
func transition(st *model.State, act Action, reason string, now time.Time) (model.Event, error) {
	tr, ok := TransitionFor(st.Status, act)
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, act, st.Status)
	}
	return ApplyTransition(st, tr, reason, now), nil
}
