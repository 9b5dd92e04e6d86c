// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package drift turns drift observations into lifecycle updates.
package drift

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/metrics"
)

// Deltas are optional drift metrics. They are logged and exported but do
// not influence the lifecycle.
type Deltas struct {
	HitRate *float64 `json:"deltaHitRate,omitempty"`
	Sharpe  *float64 `json:"deltaSharpe,omitempty"`
}

// Updater is the slice of the state machine the monitor needs.
type Updater interface {
	UpdateDrift(ctx context.Context, asset model.Asset, sev model.Severity) (machine.DriftResult, error)
}

// Monitor accepts severity reports and feeds auto-revoke and auto-recovery.
type Monitor struct {
	updater Updater
	logger  zerolog.Logger
}

func NewMonitor(u Updater) *Monitor {
	return &Monitor{updater: u, logger: log.WithComponent("drift")}
}

// Update validates severity and forwards it to the state machine.
func (m *Monitor) Update(ctx context.Context, asset model.Asset, severity string, d Deltas) (machine.DriftResult, error) {
	sev, err := model.ParseSeverity(severity)
	if err != nil {
		return machine.DriftResult{}, err
	}
	if !asset.Valid() {
		return machine.DriftResult{}, fmt.Errorf("%w: %q", model.ErrInvalidAsset, asset)
	}

	res, err := m.updater.UpdateDrift(ctx, asset, sev)
	if err != nil {
		return machine.DriftResult{}, err
	}

	metrics.SetDriftSeverity(string(asset), string(sev))
	metrics.SetDriftDeltas(string(asset), d.HitRate, d.Sharpe)

	l := log.WithContext(ctx, m.logger)
	ev := l.Info()
	if sev == model.SeverityOK {
		ev = l.Debug()
	}
	ev = ev.Str(log.FieldEvent, "drift.update").
		Str(log.FieldAsset, string(asset)).
		Str(log.FieldSeverity, string(sev)).
		Str("previous", string(res.Previous)).
		Bool("revoked", res.Revoked).
		Bool("recovered", res.Recovered)
	if d.HitRate != nil {
		ev = ev.Float64("delta_hit_rate", *d.HitRate)
	}
	if d.Sharpe != nil {
		ev = ev.Float64("delta_sharpe", *d.Sharpe)
	}
	ev.Msg("drift severity updated")
	return res, nil
}
