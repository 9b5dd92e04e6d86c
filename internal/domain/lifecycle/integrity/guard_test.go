// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integrity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func baseState(status model.Status) *model.State {
	st := model.NewState(model.AssetBTC, 30, now.Add(-time.Hour))
	st.Status = status
	st.SystemMode = status.SystemMode()
	switch status {
	case model.StatusWarmup:
		st.WarmupStartedAt = model.TimePtr(now)
	case model.StatusApplied:
		st.AppliedAt = model.TimePtr(now)
	case model.StatusRevoked:
		st.RevokedAt = model.TimePtr(now)
	}
	return st
}

func TestInspect_CleanStateHasNoFixes(t *testing.T) {
	for _, s := range []model.Status{model.StatusSimulation, model.StatusWarmup, model.StatusApplied, model.StatusRevoked} {
		res := Inspect(baseState(s), now)
		assert.True(t, res.Valid, s)
		assert.Empty(t, res.Fixes, s)
		assert.Empty(t, res.Violations, s)
		assert.False(t, res.Revoked, s)
	}
}

func TestInspect_AppliedCriticalIsRevoked(t *testing.T) {
	st := baseState(model.StatusApplied)
	st.DriftSeverity = model.SeverityCritical

	res := Inspect(st, now)
	require.True(t, res.Valid)
	assert.True(t, res.Revoked)
	assert.Equal(t, model.StatusRevoked, res.State.Status)
	assert.Equal(t, "HALTED", res.State.SystemMode)
	require.NotNil(t, res.State.RevokedAt)
	assert.Equal(t, now, *res.State.RevokedAt)
	assert.Contains(t, res.Fixes, "forced REVOKED: APPLIED with CRITICAL drift")

	// input untouched
	assert.Equal(t, model.StatusApplied, st.Status)
}

func TestInspect_SoftFixes(t *testing.T) {
	tests := []struct {
		name  string
		state func() *model.State
		check func(t *testing.T, fixed *model.State)
	}{
		{
			name: "simulation samples reset",
			state: func() *model.State {
				st := baseState(model.StatusSimulation)
				st.LiveSamples = 4
				return st
			},
			check: func(t *testing.T, fixed *model.State) { assert.Equal(t, 0, fixed.LiveSamples) },
		},
		{
			name: "warmup start stamped",
			state: func() *model.State {
				st := baseState(model.StatusWarmup)
				st.WarmupStartedAt = nil
				return st
			},
			check: func(t *testing.T, fixed *model.State) { assert.Equal(t, now, *fixed.WarmupStartedAt) },
		},
		{
			name: "applied stamped",
			state: func() *model.State {
				st := baseState(model.StatusApplied)
				st.AppliedAt = nil
				return st
			},
			check: func(t *testing.T, fixed *model.State) { assert.Equal(t, now, *fixed.AppliedAt) },
		},
		{
			name: "revoked stamped",
			state: func() *model.State {
				st := baseState(model.StatusRevoked)
				st.RevokedAt = nil
				return st
			},
			check: func(t *testing.T, fixed *model.State) { assert.Equal(t, now, *fixed.RevokedAt) },
		},
		{
			name: "system mode recomputed",
			state: func() *model.State {
				st := baseState(model.StatusWarmup)
				st.SystemMode = "LIVE"
				return st
			},
			check: func(t *testing.T, fixed *model.State) { assert.Equal(t, "EVALUATION", fixed.SystemMode) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Inspect(tt.state(), now)
			require.True(t, res.Valid)
			require.Len(t, res.Fixes, 1)
			tt.check(t, res.State)

			again := Inspect(res.State, now)
			assert.True(t, again.Valid)
			assert.Empty(t, again.Fixes, "fixed state must be clean")
		})
	}
}

func TestInspect_Unfixable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(st *model.State)
	}{
		{"bad status", func(st *model.State) { st.Status = "PAUSED" }},
		{"bad severity", func(st *model.State) { st.DriftSeverity = "SEVERE" }},
		{"negative samples", func(st *model.State) { st.LiveSamples = -1 }},
		{"negative target", func(st *model.State) { st.WarmupTargetDays = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := baseState(model.StatusWarmup)
			tt.mutate(st)
			res := Inspect(st, now)
			assert.False(t, res.Valid)
			assert.Empty(t, res.Fixes)
			assert.Len(t, res.Violations, 1)
			assert.Contains(t, Admit(st), "integrity check failed: ")
		})
	}
}

func TestAdmit(t *testing.T) {
	st := baseState(model.StatusWarmup)
	assert.Equal(t, "", Admit(st))

	st.DriftSeverity = model.SeverityCritical
	assert.Equal(t, "drift severity CRITICAL", Admit(st))
}
