// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/lifecycle/state", 200)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/lifecycle/state")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestRunAttributes(t *testing.T) {
	tests := []struct {
		name    string
		runID   string
		wantLen int
	}{
		{name: "with run id", runID: "run-1", wantLen: 3},
		{name: "without run id", runID: "", wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := RunAttributes("BTC", tt.runID, "MANUAL")
			if len(attrs) != tt.wantLen {
				t.Fatalf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			verifyAttribute(t, attrs, AssetKey, "BTC")
			verifyAttribute(t, attrs, RunModeKey, "MANUAL")
		})
	}
}

func TestRunResultAttributes(t *testing.T) {
	attrs := RunResultAttributes("COMPLETED", 11, 42, [2]string{"WARMUP", "APPLIED"})
	if len(attrs) != 5 {
		t.Fatalf("Expected 5 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, RunStatusKey, "COMPLETED")
	verifyIntAttribute(t, attrs, RunStepsOKKey, 11)
	verifyInt64Attribute(t, attrs, RunDurationKey, 42)
	verifyAttribute(t, attrs, FromStatusKey, "WARMUP")
	verifyAttribute(t, attrs, ToStatusKey, "APPLIED")

	same := RunResultAttributes("DEGRADED", 9, 10, [2]string{"WARMUP", "WARMUP"})
	if len(same) != 3 {
		t.Fatalf("Expected 3 attributes without a transition, got %d", len(same))
	}
}

func TestStepAttributes(t *testing.T) {
	attrs := StepAttributes("DRIFT_CHECK", false)
	verifyAttribute(t, attrs, RunStepKey, "DRIFT_CHECK")
	verifyBoolAttribute(t, attrs, RunStepOKKey, false)
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("storage_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "storage_error")
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
