// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for operator-initiated
// lifecycle changes. It follows the WHO/WHAT/WHEN pattern.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Configuration events
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	// Lifecycle events
	EventLifecycleAction  EventType = "lifecycle.action"
	EventLifecycleBlocked EventType = "lifecycle.blocked"

	// Daily run events
	EventDailyRunTrigger EventType = "dailyrun.trigger"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor"`             // WHO: remote address or "system"
	Action    string            `json:"action"`            // WHAT: e.g. force_apply
	Resource  string            `json:"resource"`          // asset or config file
	Result    string            `json:"result"`            // success, failure, blocked
	RequestID string            `json:"request_id"`        // correlation
	Details   map[string]string `json:"details,omitempty"` // additional context
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith builds an audit logger on top of l.
func NewLoggerWith(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RequestID != "" {
		logEvent.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogFromContext fills the request ID from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	if event.Actor == "" {
		event.Actor = ActorFromContext(ctx)
	}
	l.Log(event)
}

// LifecycleAction logs an operator action against an asset.
func (l *Logger) LifecycleAction(ctx context.Context, action, asset, result string, details map[string]string) {
	typ := EventLifecycleAction
	if result == "blocked" {
		typ = EventLifecycleBlocked
	}
	l.LogFromContext(ctx, Event{
		Type:     typ,
		Action:   action,
		Resource: asset,
		Result:   result,
		Details:  details,
	})
}

// ConfigReload logs a configuration reload.
func (l *Logger) ConfigReload(actor, result string, details map[string]string) {
	typ := EventConfigReload
	if result != "success" {
		typ = EventConfigReloadError
	}
	l.Log(Event{
		Type:     typ,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   result,
		Details:  details,
	})
}

// DailyRunTrigger logs a manually triggered pipeline run.
func (l *Logger) DailyRunTrigger(ctx context.Context, asset, runID, status string) {
	l.LogFromContext(ctx, Event{
		Type:     EventDailyRunTrigger,
		Action:   "run daily pipeline",
		Resource: asset,
		Result:   status,
		Details:  map[string]string{"run_id": runID},
	})
}

type actorKey struct{}

// ContextWithActor records who initiated the request.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the recorded actor, or "system".
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}
