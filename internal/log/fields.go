// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldRunID         = "run_id"
	FieldAsset         = "asset"
	FieldActor         = "actor"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStep      = "step"
	FieldMode      = "mode"
	FieldBackend   = "backend"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"
	FieldSeverity = "severity"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMs = "duration_ms"
	FieldRemoteAddr = "remote_addr"
)
