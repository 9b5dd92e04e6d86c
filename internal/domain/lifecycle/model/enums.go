// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAsset    = errors.New("asset must be BTC or SPX")
	ErrInvalidStatus   = errors.New("invalid lifecycle status")
	ErrInvalidSeverity = errors.New("severity must be OK, WARN or CRITICAL")
)

// Asset identifies a tradable instrument. Each asset owns exactly one model.
type Asset string

const (
	AssetBTC Asset = "BTC"
	AssetSPX Asset = "SPX"
)

// Assets returns the fixed asset set in display order.
func Assets() []Asset {
	return []Asset{AssetBTC, AssetSPX}
}

func (a Asset) Valid() bool {
	switch a {
	case AssetBTC, AssetSPX:
		return true
	}
	return false
}

// ParseAsset accepts any casing and surrounding whitespace.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	return a, nil
}

// Status is the lifecycle status of a model.
type Status string

const (
	StatusSimulation Status = "SIMULATION"
	StatusWarmup     Status = "WARMUP"
	StatusApplied    Status = "APPLIED"
	StatusRevoked    Status = "REVOKED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSimulation, StatusWarmup, StatusApplied, StatusRevoked:
		return true
	}
	return false
}

// SystemMode is the operator-facing label derived from Status.
// An unknown status maps to an empty label.
func (s Status) SystemMode() string {
	switch s {
	case StatusSimulation:
		return "SIMULATION"
	case StatusWarmup:
		return "EVALUATION"
	case StatusApplied:
		return "LIVE"
	case StatusRevoked:
		return "HALTED"
	}
	return ""
}

// Severity is the drift classification reported by the drift monitor.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityOK, SeverityWarn, SeverityCritical:
		return true
	}
	return false
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// EventType names an accepted lifecycle transition or audit action.
type EventType string

const (
	EventInitialized         EventType = "INITIALIZED"
	EventReset               EventType = "RESET"
	EventWarmupStarted       EventType = "WARMUP_STARTED"
	EventApplied             EventType = "APPLIED"
	EventRevoked             EventType = "REVOKED"
	EventAutoRevoked         EventType = "AUTO_REVOKED"
	EventAutoRecovered       EventType = "AUTO_RECOVERED"
	EventAutoPromoted        EventType = "AUTO_PROMOTED"
	EventConstitutionChanged EventType = "CONSTITUTION_CHANGED"
	EventIntegrityFix        EventType = "INTEGRITY_FIX"
)

// Critical reports whether the event is a safety action that operators
// should be alerted about immediately.
func (e EventType) Critical() bool {
	switch e {
	case EventAutoRevoked, EventRevoked, EventIntegrityFix:
		return true
	}
	return false
}
