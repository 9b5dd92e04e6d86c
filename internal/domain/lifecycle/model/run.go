// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"time"
)

// RunMode records what triggered a daily run.
type RunMode string

const (
	RunManual    RunMode = "MANUAL"
	RunScheduled RunMode = "SCHEDULED"
)

// RunStatus is the overall outcome of a daily run.
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED" // every step ok
	RunDegraded  RunStatus = "DEGRADED"  // all steps ran, at least one failed
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// StepResult is the outcome of a single pipeline step.
type StepResult struct {
	Name    string         `json:"name"`
	OK      bool           `json:"ok"`
	Ms      int64          `json:"ms"`
	Details map[string]any `json:"details,omitempty"`
}

// LifecycleCapture brackets a run with the asset state before and after.
type LifecycleCapture struct {
	Before     *State `json:"before"`
	After      *State `json:"after,omitempty"`
	Transition string `json:"transition,omitempty"`
}

// RunResult is the full record of one daily run.
type RunResult struct {
	RunID      string           `json:"runId"`
	Asset      Asset            `json:"asset"`
	Mode       RunMode          `json:"mode"`
	Status     RunStatus        `json:"status"`
	DurationMs int64            `json:"durationMs"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Steps      []StepResult     `json:"steps"`
	Lifecycle  LifecycleCapture `json:"lifecycle"`
	Error      string           `json:"error,omitempty"`
}

// StepsOK counts successful steps.
func (r *RunResult) StepsOK() int {
	n := 0
	for _, s := range r.Steps {
		if s.OK {
			n++
		}
	}
	return n
}

// FormatTransition renders a status change as "FROM→TO". Equal statuses
// yield an empty string.
func FormatTransition(from, to Status) string {
	if from == to {
		return ""
	}
	return fmt.Sprintf("%s→%s", from, to)
}

// RunMeta is the summary block of a persisted run record.
type RunMeta struct {
	RunID      string    `json:"runId"`
	Status     RunStatus `json:"status"`
	DurationMs int64     `json:"durationMs"`
	Transition string    `json:"transition,omitempty"`
	StepsOK    int       `json:"stepsOk"`
}

// RunRecord is how a run is stored and returned by history queries.
type RunRecord struct {
	Type   string     `json:"type"`
	TS     time.Time  `json:"ts"`
	Asset  Asset      `json:"asset"`
	Meta   RunMeta    `json:"meta"`
	Result *RunResult `json:"result"`
}

// NewRunRecord wraps a finished run.
func NewRunRecord(r *RunResult) *RunRecord {
	return &RunRecord{
		Type:  "DAILY_RUN_" + string(r.Status),
		TS:    r.FinishedAt,
		Asset: r.Asset,
		Meta: RunMeta{
			RunID:      r.RunID,
			Status:     r.Status,
			DurationMs: r.DurationMs,
			Transition: r.Lifecycle.Transition,
			StepsOK:    r.StepsOK(),
		},
		Result: r,
	}
}
