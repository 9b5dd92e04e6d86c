// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager serializes work per asset and exposes the lifecycle to
// operators. Every mutating call holds the asset lock for its duration;
// pipeline runs take the same lock through WithAsset.
package manager

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/drift"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
	"github.com/ManuGH/fractal/internal/log"
)

type Deps struct {
	Machine *machine.Machine
	Audit   *audit.Logger
	Logger  zerolog.Logger
}

type Manager struct {
	machine *machine.Machine
	drift   *drift.Monitor
	audit   *audit.Logger
	logger  zerolog.Logger
	locks   *keylock
}

func New(deps Deps) *Manager {
	m := &Manager{
		machine: deps.Machine,
		drift:   drift.NewMonitor(deps.Machine),
		audit:   deps.Audit,
		logger:  deps.Logger,
		locks:   newKeylock(),
	}
	if m.audit == nil {
		m.audit = audit.NewLogger()
	}
	if m.logger.GetLevel() == zerolog.Disabled {
		m.logger = log.WithComponent("lifecycle.manager")
	}
	return m
}

// Machine returns the underlying state machine. Callers that mutate
// through it must hold the asset lock via WithAsset.
func (m *Manager) Machine() *machine.Machine { return m.machine }

// Store returns the lifecycle store for read paths.
func (m *Manager) Store() store.Store { return m.machine.Store() }

// WithAsset runs fn while holding the asset lock. It waits until the lock
// is free or ctx is done.
func (m *Manager) WithAsset(ctx context.Context, asset model.Asset, fn func(ctx context.Context) error) error {
	if !asset.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidAsset, asset)
	}
	release, err := m.locks.acquire(ctx, asset)
	if err != nil {
		l := log.WithContext(ctx, m.logger)
		l.Warn().
			Str(log.FieldEvent, "lifecycle.lock_timeout").
			Str(log.FieldAsset, string(asset)).
			Err(err).
			Msg("asset lock not acquired")
		return err
	}
	defer release()
	return fn(ctx)
}

func (m *Manager) Get(ctx context.Context, asset model.Asset) (*model.State, error) {
	return m.machine.Get(ctx, asset)
}

func (m *Manager) List(ctx context.Context) ([]*model.State, error) {
	return m.machine.List(ctx)
}

// Events reads the event log, newest first.
func (m *Manager) Events(ctx context.Context, q store.EventQuery) ([]model.Event, error) {
	if q.Asset != "" && !q.Asset.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAsset, q.Asset)
	}
	return m.machine.Store().Events(ctx, q)
}

// InitAll initialises every known asset and returns all states.
func (m *Manager) InitAll(ctx context.Context) ([]*model.State, error) {
	out := make([]*model.State, 0, len(model.Assets()))
	for _, a := range model.Assets() {
		st, err := m.Init(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Manager) Init(ctx context.Context, asset model.Asset) (st *model.State, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		st, err = m.machine.Init(ctx, asset)
		return err
	})
	return st, err
}

func (m *Manager) ResetSimulation(ctx context.Context, asset model.Asset, reason string) (st *model.State, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		st, err = m.machine.ResetSimulation(ctx, asset, reason)
		return err
	})
	m.record(ctx, "reset_simulation", asset, err, false, map[string]string{"reason": reason})
	return st, err
}

func (m *Manager) ForceWarmup(ctx context.Context, asset model.Asset, targetDays int, reason string) (st *model.State, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		st, err = m.machine.ForceWarmup(ctx, asset, targetDays, reason)
		return err
	})
	m.record(ctx, "force_warmup", asset, err, false, map[string]string{
		"reason":      reason,
		"target_days": strconv.Itoa(targetDays),
	})
	return st, err
}

func (m *Manager) ForceApply(ctx context.Context, asset model.Asset, reason string) (res machine.ApplyResult, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		res, err = m.machine.ForceApply(ctx, asset, reason)
		return err
	})
	details := map[string]string{"reason": reason}
	if res.Blocked {
		details["block_reason"] = res.Reason
	}
	m.record(ctx, "force_apply", asset, err, res.Blocked, details)
	return res, err
}

func (m *Manager) Revoke(ctx context.Context, asset model.Asset, reason string) (st *model.State, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		st, err = m.machine.Revoke(ctx, asset, reason)
		return err
	})
	m.record(ctx, "revoke", asset, err, false, map[string]string{"reason": reason})
	return st, err
}

func (m *Manager) ApplyConstitution(ctx context.Context, asset model.Asset, hash string) (res machine.ConstitutionResult, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		res, err = m.machine.ApplyConstitution(ctx, asset, hash)
		return err
	})
	m.record(ctx, "apply_constitution", asset, err, false, map[string]string{
		"hash":         hash,
		"transitioned": strconv.FormatBool(res.Transitioned),
	})
	return res, err
}

// UpdateDrift forwards a severity report to the drift monitor.
func (m *Manager) UpdateDrift(ctx context.Context, asset model.Asset, severity string, d drift.Deltas) (res machine.DriftResult, err error) {
	if _, perr := model.ParseSeverity(severity); perr != nil {
		return res, perr
	}
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		res, err = m.drift.Update(ctx, asset, severity, d)
		return err
	})
	return res, err
}

func (m *Manager) IncrementSamples(ctx context.Context, asset model.Asset, count int) (res machine.SamplesResult, err error) {
	if count < 1 {
		return res, fmt.Errorf("%w: got %d", machine.ErrInvalidCount, count)
	}
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		res, err = m.machine.IncrementSamples(ctx, asset, count)
		return err
	})
	return res, err
}

func (m *Manager) CheckIntegrity(ctx context.Context, asset model.Asset) (res machine.IntegrityResult, err error) {
	err = m.WithAsset(ctx, asset, func(ctx context.Context) error {
		res, err = m.machine.CheckIntegrity(ctx, asset)
		return err
	})
	return res, err
}

// CheckPromotion is read-only and does not take the lock.
func (m *Manager) CheckPromotion(ctx context.Context, asset model.Asset) (machine.PromotionResult, error) {
	return m.machine.CheckPromotion(ctx, asset)
}

func (m *Manager) record(ctx context.Context, action string, asset model.Asset, err error, blocked bool, details map[string]string) {
	result := "success"
	switch {
	case err != nil:
		result = "failure"
		details["error"] = err.Error()
	case blocked:
		result = "blocked"
	}
	m.audit.LifecycleAction(ctx, action, string(asset), result, details)
}
