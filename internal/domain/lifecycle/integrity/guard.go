// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package integrity validates recorded lifecycle states against the
// structural invariants and repairs the inconsistencies that have an
// unambiguous fix. It is pure: callers persist the repaired state.
package integrity

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// ReasonCriticalWhileApplied is recorded when the guard forces a revoke.
const ReasonCriticalWhileApplied = "integrity: CRITICAL drift while APPLIED"

// Report is the externally visible outcome of a check.
type Report struct {
	Valid      bool     `json:"valid"`
	Fixes      []string `json:"fixes"`
	Violations []string `json:"violations"`
}

// Result carries the report plus the repaired state.
type Result struct {
	Report
	// State is a repaired copy when Valid, otherwise an untouched copy.
	State *model.State
	// Revoked is set when a fix moved the state from APPLIED to REVOKED.
	Revoked bool
}

// Violations lists the unfixable problems of st. An empty slice means the
// state can be repaired by Inspect.
func Violations(st *model.State) []string {
	out := []string{}
	if !st.Status.Valid() {
		out = append(out, fmt.Sprintf("status %q is not a lifecycle status", st.Status))
	}
	if !st.DriftSeverity.Valid() {
		out = append(out, fmt.Sprintf("drift severity %q is not a severity", st.DriftSeverity))
	}
	if st.LiveSamples < 0 {
		out = append(out, fmt.Sprintf("liveSamples is negative (%d)", st.LiveSamples))
	}
	if st.WarmupTargetDays < 0 {
		out = append(out, fmt.Sprintf("warmupTargetDays is negative (%d)", st.WarmupTargetDays))
	}
	return out
}

// Inspect checks st and applies every soft fix. The input is not modified.
func Inspect(st *model.State, now time.Time) Result {
	res := Result{
		Report: Report{Fixes: []string{}, Violations: Violations(st)},
		State:  st.Clone(),
	}
	if len(res.Violations) > 0 {
		return res
	}

	fixed := res.State
	fix := func(msg string) { res.Fixes = append(res.Fixes, msg) }

	if fixed.Status == model.StatusApplied && fixed.DriftSeverity == model.SeverityCritical {
		fixed.Status = model.StatusRevoked
		fixed.RevokedAt = model.TimePtr(now)
		fixed.LastTransitionReason = ReasonCriticalWhileApplied
		res.Revoked = true
		fix("forced REVOKED: APPLIED with CRITICAL drift")
	}
	if fixed.Status == model.StatusSimulation && fixed.LiveSamples > 0 {
		fix(fmt.Sprintf("reset liveSamples %d→0 in SIMULATION", fixed.LiveSamples))
		fixed.LiveSamples = 0
	}
	if fixed.Status == model.StatusWarmup && fixed.WarmupStartedAt == nil {
		fixed.WarmupStartedAt = model.TimePtr(now)
		fix("stamped missing warmupStartedAt")
	}
	if fixed.Status == model.StatusApplied && fixed.AppliedAt == nil {
		fixed.AppliedAt = model.TimePtr(now)
		fix("stamped missing appliedAt")
	}
	if fixed.Status == model.StatusRevoked && fixed.RevokedAt == nil {
		fixed.RevokedAt = model.TimePtr(now)
		fix("stamped missing revokedAt")
	}
	if want := fixed.Status.SystemMode(); fixed.SystemMode != want {
		fix(fmt.Sprintf("systemMode %q→%q", fixed.SystemMode, want))
		fixed.SystemMode = want
	}

	res.Valid = true
	return res
}

// Admit decides whether st may be committed as APPLIED. It returns the
// block reason, or "" when st is admissible.
func Admit(st *model.State) string {
	if st.DriftSeverity == model.SeverityCritical {
		return "drift severity CRITICAL"
	}
	if v := Violations(st); len(v) > 0 {
		return "integrity check failed: " + strings.Join(v, "; ")
	}
	return ""
}
