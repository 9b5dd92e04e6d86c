// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across fractald.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Lifecycle attributes
	AssetKey      = "lifecycle.asset"
	FromStatusKey = "lifecycle.from_status"
	ToStatusKey   = "lifecycle.to_status"

	// Daily run attributes
	RunIDKey       = "dailyrun.run_id"
	RunModeKey     = "dailyrun.mode"
	RunStatusKey   = "dailyrun.status"
	RunStepKey     = "dailyrun.step"
	RunStepOKKey   = "dailyrun.step_ok"
	RunStepsOKKey  = "dailyrun.steps_ok"
	RunDurationKey = "dailyrun.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RunAttributes identifies a daily run span.
func RunAttributes(asset, runID, mode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AssetKey, asset),
		attribute.String(RunModeKey, mode),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	return attrs
}

// RunResultAttributes are set on the run span when it finishes.
func RunResultAttributes(status string, stepsOK int, durationMS int64, transition [2]string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RunStatusKey, status),
		attribute.Int(RunStepsOKKey, stepsOK),
		attribute.Int64(RunDurationKey, durationMS),
	}
	if transition[0] != "" && transition[0] != transition[1] {
		attrs = append(attrs,
			attribute.String(FromStatusKey, transition[0]),
			attribute.String(ToStatusKey, transition[1]),
		)
	}
	return attrs
}

// StepAttributes creates per-step span attributes.
func StepAttributes(step string, ok bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunStepKey, step),
		attribute.Bool(RunStepOKKey, ok),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class such as
// "panic" or "step_error".
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
