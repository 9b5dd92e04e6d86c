// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package machine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/integrity"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
)

// ApplyResult is the outcome of ForceApply. A blocked apply is a normal
// result, not an error.
type ApplyResult struct {
	Applied bool         `json:"applied"`
	Blocked bool         `json:"blocked"`
	Reason  string       `json:"reason"`
	State   *model.State `json:"state"`
}

// ConstitutionResult is the outcome of ApplyConstitution.
type ConstitutionResult struct {
	Applied      bool         `json:"applied"`
	Transitioned bool         `json:"transitioned"`
	NewStatus    model.Status `json:"newStatus"`
	Reason       string       `json:"reason"`
	State        *model.State `json:"state"`
}

// ResetSimulation moves the model back to SIMULATION with a clean slate.
// It always succeeds for a valid asset.
func (m *Machine) ResetSimulation(ctx context.Context, asset model.Asset, reason string) (*model.State, error) {
	return m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		ev, err := transition(st, ActReset, reason, now)
		if err != nil {
			return nil, err
		}
		st.DriftSeverity = model.SeverityOK
		return []model.Event{ev}, nil
	})
}

// ForceWarmup starts a warmup from any status. targetDays 0 selects the
// policy default.
func (m *Machine) ForceWarmup(ctx context.Context, asset model.Asset, targetDays int, reason string) (*model.State, error) {
	if targetDays < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTargetDays, targetDays)
	}
	if targetDays == 0 {
		targetDays = m.Policy().WarmupTargetDays
	}
	return m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		ev, err := transition(st, ActForceWarmup, reason, now)
		if err != nil {
			return nil, err
		}
		st.WarmupTargetDays = targetDays
		return []model.Event{ev}, nil
	})
}

// ForceApply attempts to move the model to APPLIED. The prospective state
// is checked by the integrity guard; CRITICAL drift or an unfixable
// violation blocks the apply and leaves the state untouched.
func (m *Machine) ForceApply(ctx context.Context, asset model.Asset, reason string) (ApplyResult, error) {
	var res ApplyResult
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		prospective := st.Clone()
		prospective.Status = model.StatusApplied
		prospective.SystemMode = model.StatusApplied.SystemMode()
		if why := integrity.Admit(prospective); why != "" {
			res = ApplyResult{Blocked: true, Reason: why}
			return nil, nil
		}
		ev, err := transition(st, ActForceApply, reason, now)
		if err != nil {
			return nil, err
		}
		res = ApplyResult{Applied: true, Reason: ev.Reason}
		return []model.Event{ev}, nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	if res.Blocked {
		metrics.RecordPromotionBlocked(string(asset), res.Reason)
		l := log.WithContext(ctx, m.logger)
		l.Warn().
			Str(log.FieldEvent, "lifecycle.apply_blocked").
			Str(log.FieldAsset, string(asset)).
			Str(log.FieldReason, res.Reason).
			Msg("force apply blocked")
	}
	res.State = st
	return res, nil
}

// Revoke moves the model to REVOKED from any status.
func (m *Machine) Revoke(ctx context.Context, asset model.Asset, reason string) (*model.State, error) {
	return m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		ev, err := transition(st, ActRevoke, reason, now)
		if err != nil {
			return nil, err
		}
		return []model.Event{ev}, nil
	})
}

// ApplyConstitution records a new constitution hash. A changed hash while
// APPLIED forces the model back to WARMUP. An unchanged hash is a no-op.
func (m *Machine) ApplyConstitution(ctx context.Context, asset model.Asset, hash string) (ConstitutionResult, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return ConstitutionResult{}, ErrInvalidHash
	}

	var res ConstitutionResult
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		if st.ConstitutionHash == hash {
			res = ConstitutionResult{Reason: "constitution unchanged"}
			return nil, nil
		}
		st.ConstitutionHash = hash
		res.Applied = true

		if st.Status == model.StatusApplied {
			ev, err := transition(st, ActConstitutionChange, "", now)
			if err != nil {
				return nil, err
			}
			res.Transitioned = true
			res.Reason = ev.Reason
			return []model.Event{ev}, nil
		}
		res.Reason = "constitution recorded"
		return nil, nil
	})
	if err != nil {
		return ConstitutionResult{}, err
	}
	res.State = st
	res.NewStatus = st.Status
	return res, nil
}
