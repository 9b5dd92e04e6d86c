// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// State is the store-owned source of truth for one asset's model.
type State struct {
	Asset                Asset      `json:"asset"`
	Status               Status     `json:"status"`
	SystemMode           string     `json:"systemMode"`
	LiveSamples          int        `json:"liveSamples"`
	DriftSeverity        Severity   `json:"driftSeverity"`
	ConstitutionHash     string     `json:"constitutionHash,omitempty"`
	WarmupTargetDays     int        `json:"warmupTargetDays"`
	WarmupStartedAt      *time.Time `json:"warmupStartedAt,omitempty"`
	LastTransitionReason string     `json:"lastTransitionReason,omitempty"`
	AppliedAt            *time.Time `json:"appliedAt,omitempty"`
	RevokedAt            *time.Time `json:"revokedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// NewState returns the initial SIMULATION state for an asset.
func NewState(asset Asset, warmupTargetDays int, now time.Time) *State {
	return &State{
		Asset:            asset,
		Status:           StatusSimulation,
		SystemMode:       StatusSimulation.SystemMode(),
		DriftSeverity:    SeverityOK,
		WarmupTargetDays: warmupTargetDays,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers never
// alias stored records.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.WarmupStartedAt = cloneTime(s.WarmupStartedAt)
	c.AppliedAt = cloneTime(s.AppliedAt)
	c.RevokedAt = cloneTime(s.RevokedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr is a helper for the nullable timestamp fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// Event is an immutable lifecycle log entry. Seq is assigned by the store.
type Event struct {
	Seq        int64     `json:"seq"`
	Type       EventType `json:"type"`
	ModelID    Asset     `json:"modelId"`
	FromStatus Status    `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
