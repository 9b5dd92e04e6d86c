// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// MarketSnapshot is the market context recorded alongside a state snapshot.
type MarketSnapshot struct {
	Asset  model.Asset `json:"asset"`
	Price  float64     `json:"price"`
	AsOf   time.Time   `json:"asOf"`
	Source string      `json:"source"`
}

// Snapshot is the point-in-time record written by SNAPSHOT_WRITE.
type Snapshot struct {
	RunID   string         `json:"runId"`
	Asset   model.Asset    `json:"asset"`
	TakenAt time.Time      `json:"takenAt"`
	State   *model.State   `json:"state"`
	Market  MarketSnapshot `json:"market"`
}

// TimelineEntry summarises a run's lifecycle-relevant activity.
type TimelineEntry struct {
	RunID         string            `json:"runId"`
	Asset         model.Asset       `json:"asset"`
	TS            time.Time         `json:"ts"`
	Mode          model.RunMode     `json:"mode"`
	Status        model.Status      `json:"status"`
	Transition    string            `json:"transition,omitempty"`
	LiveSamples   int               `json:"liveSamples"`
	DriftSeverity model.Severity    `json:"driftSeverity"`
	Resolved      int               `json:"resolved"`
	HitRate       float64           `json:"hitRate"`
	Events        []model.EventType `json:"events,omitempty"`
	StepsOK       int               `json:"stepsOk"`
	StepsRun      int               `json:"stepsRun"`
}

// Alert is one lifecycle event handed to the alert transport.
type Alert struct {
	RunID    string      `json:"runId"`
	Asset    model.Asset `json:"asset"`
	Severity string      `json:"severity"` // info or critical
	Message  string      `json:"message"`
	Event    model.Event `json:"event"`
}

// AlertFor builds the alert for a lifecycle event.
func AlertFor(runID string, ev model.Event) Alert {
	sev := "info"
	if ev.Type.Critical() {
		sev = "critical"
	}
	msg := fmt.Sprintf("%s %s: now %s", ev.ModelID, ev.Type, ev.ToStatus)
	if tr := model.FormatTransition(ev.FromStatus, ev.ToStatus); ev.FromStatus != "" && tr != "" {
		msg = fmt.Sprintf("%s %s: %s", ev.ModelID, ev.Type, tr)
	}
	if ev.Reason != "" {
		msg += " (" + ev.Reason + ")"
	}
	return Alert{RunID: runID, Asset: ev.ModelID, Severity: sev, Message: msg, Event: ev}
}

// Storage persists run artifacts. Failures are step-level errors.
type Storage interface {
	WriteSnapshot(ctx context.Context, asset model.Asset, snap Snapshot) error
	WriteProgress(ctx context.Context, asset model.Asset, st *model.State) error
	WriteTimeline(ctx context.Context, asset model.Asset, entry TimelineEntry) error
}

// Forecaster supplies market data and resolved forecast outcomes.
type Forecaster interface {
	ResolveOutcomes(ctx context.Context, asset model.Asset, since time.Time) ([]model.Outcome, error)
	MarketSnapshot(ctx context.Context, asset model.Asset) (MarketSnapshot, error)
}

// Alerter delivers lifecycle alerts. A failed dispatch never rolls back
// the lifecycle change it reports.
type Alerter interface {
	Dispatch(ctx context.Context, a Alert) error
}

// HookContext is what lifecycle hooks observe.
type HookContext struct {
	RunID      string
	Asset      model.Asset
	Before     *model.State
	Current    *model.State
	Transition string
}

// Hook is a side effect run by LIFECYCLE_HOOKS.
type Hook func(ctx context.Context, hc HookContext) error
