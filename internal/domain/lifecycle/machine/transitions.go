// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package machine

import (
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// Action is a request to move a model between lifecycle statuses.
type Action string

const (
	ActReset              Action = "reset_simulation"
	ActForceWarmup        Action = "force_warmup"
	ActForceApply         Action = "force_apply"
	ActRevoke             Action = "revoke"
	ActConstitutionChange Action = "constitution_change"
	ActAutoRevoke         Action = "auto_revoke"
	ActAutoRecover        Action = "auto_recover"
	ActAutoPromote        Action = "auto_promote"
	ActIntegrityRevoke    Action = "integrity_revoke"
)

// Default transition reasons.
const (
	ReasonConstitutionChanged = "constitution changed"
	ReasonCriticalDrift       = "critical drift"
	ReasonDriftRecovered      = "drift recovered"
	ReasonInitialized         = "initialized"
)

// Transition is a single allowed edge in the lifecycle state machine.
// An empty From matches every status.
type Transition struct {
	Action Action
	From   []model.Status
	To     model.Status
	Event  model.EventType
	Reason string
}

var transitionsTable = []Transition{
	// Operator actions: accepted from any status
	{Action: ActReset, To: model.StatusSimulation, Event: model.EventReset, Reason: "reset to simulation"},
	{Action: ActForceWarmup, To: model.StatusWarmup, Event: model.EventWarmupStarted, Reason: "warmup forced"},
	{Action: ActForceApply, To: model.StatusApplied, Event: model.EventApplied, Reason: "applied manually"},
	{Action: ActRevoke, To: model.StatusRevoked, Event: model.EventRevoked, Reason: "revoked manually"},

	// Automatic edges
	{Action: ActConstitutionChange, From: []model.Status{model.StatusApplied}, To: model.StatusWarmup, Event: model.EventConstitutionChanged, Reason: ReasonConstitutionChanged},
	{Action: ActAutoRevoke, From: []model.Status{model.StatusApplied}, To: model.StatusRevoked, Event: model.EventAutoRevoked, Reason: ReasonCriticalDrift},
	{Action: ActAutoRecover, From: []model.Status{model.StatusRevoked}, To: model.StatusWarmup, Event: model.EventAutoRecovered, Reason: ReasonDriftRecovered},
	{Action: ActAutoPromote, From: []model.Status{model.StatusWarmup}, To: model.StatusApplied, Event: model.EventAutoPromoted, Reason: "live samples threshold reached"},
	{Action: ActIntegrityRevoke, From: []model.Status{model.StatusApplied}, To: model.StatusRevoked, Event: model.EventIntegrityFix},
}

// TransitionFor returns the allowed transition for a given status+action.
func TransitionFor(from model.Status, act Action) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.Action != act {
			continue
		}
		if len(tr.From) == 0 {
			return tr, true
		}
		for _, f := range tr.From {
			if f == from {
				return tr, true
			}
		}
	}
	return Transition{}, false
}

// ApplyTransition mutates st according to tr and returns the event to log.
// Entry effects: WARMUP and SIMULATION reset liveSamples, WARMUP stamps
// warmupStartedAt, APPLIED stamps appliedAt, REVOKED stamps revokedAt.
func ApplyTransition(st *model.State, tr Transition, reason string, now time.Time) model.Event {
	if reason == "" {
		reason = tr.Reason
	}
	from := st.Status

	st.Status = tr.To
	st.SystemMode = tr.To.SystemMode()
	st.LastTransitionReason = reason
	st.UpdatedAt = now

	switch tr.To {
	case model.StatusSimulation:
		st.LiveSamples = 0
	case model.StatusWarmup:
		st.LiveSamples = 0
		st.WarmupStartedAt = model.TimePtr(now)
	case model.StatusApplied:
		st.AppliedAt = model.TimePtr(now)
	case model.StatusRevoked:
		st.RevokedAt = model.TimePtr(now)
	}

	return model.Event{
		Type:       tr.Event,
		ModelID:    st.Asset,
		FromStatus: from,
		ToStatus:   tr.To,
		Reason:     reason,
		Timestamp:  now,
	}
}
