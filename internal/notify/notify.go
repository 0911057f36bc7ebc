// Package notify fans out pattern-lifecycle and match events to registered
// sinks (UI feeds, alerting). Delivery is at-least-once per sink: a failing
// sink is retried on the spot and logged, never silently dropped, so sinks
// are expected to be idempotent consumers.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// EventType identifies what happened.
type EventType string

// Event type constants.
const (
	PatternSuggestionCreated EventType = "pattern_suggestion_created"
	PatternSuggestionStale   EventType = "pattern_suggestion_stale"
	PatternActivated         EventType = "pattern_activated"
	PatternDeactivated       EventType = "pattern_deactivated"
	PatternRejected          EventType = "pattern_rejected"
	MatchCandidatesReady     EventType = "match_candidates_ready"
	MatchConfirmed           EventType = "match_confirmed"
	MatchRejected            EventType = "match_rejected"
)

// Priority hints how urgently a consumer should surface the event.
type Priority string

// Priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Event is one notification. Every event carries its tenant so consumers can
// keep tenant scoping intact.
type Event struct {
	Type     EventType `json:"type"`
	TenantID string    `json:"tenant_id"`
	EntityID string    `json:"entity_id"`
	Message  string    `json:"message"`
	Priority Priority  `json:"priority"`
}

// Sink consumes events. Implementations must tolerate redelivery.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Emitter fans events out to all registered sinks.
type Emitter struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewEmitter creates an emitter with no sinks.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a sink for all subsequent events.
func (e *Emitter) Subscribe(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit delivers the event to every sink. A failed delivery gets one
// immediate retry; a second failure is logged with the full event so the
// loss is visible, and the remaining sinks still receive it.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			if err = sink.Deliver(ctx, event); err != nil {
				slog.Error("Failed to deliver notification",
					"type", event.Type,
					"tenant_id", event.TenantID,
					"entity_id", event.EntityID,
					"error", err)
			}
		}
	}
}

// SlogSink logs every event through slog. It doubles as the default sink in
// the CLI so lifecycle events are always observable.
type SlogSink struct{}

// Deliver implements Sink.
func (SlogSink) Deliver(_ context.Context, event Event) error {
	slog.Info("Notification",
		"type", event.Type,
		"tenant_id", event.TenantID,
		"entity_id", event.EntityID,
		"priority", event.Priority,
		"message", event.Message)
	return nil
}

// ChannelSink forwards events into a buffered channel, dropping nothing: a
// full channel blocks Deliver until the consumer catches up or ctx ends.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, buffer)}
}

// Deliver implements Sink.
func (s *ChannelSink) Deliver(ctx context.Context, event Event) error {
	select {
	case s.C <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
