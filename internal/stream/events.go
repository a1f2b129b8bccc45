// Package stream delivers research progress events to session subscribers.
// Two brokers exist: an in-process hub and a Redis pub/sub bridge for
// multi-instance deployments. Publishing is best-effort on both.
package stream

import (
	"context"
	"time"
)

// Event types emitted during a research session.
const (
	EventResearchStarted      = "research_started"
	EventCycleStarted         = "cycle_started"
	EventSubagentStarted      = "subagent_started"
	EventSubagentCompleted    = "subagent_completed"
	EventSynthesisComplete    = "synthesis_complete"
	EventFindingsUpdated      = "findings_updated"
	EventInitiativeDiscovered = "initiative_discovered"
	EventResearchComplete     = "research_complete"
	EventError                = "error"
	EventHeartbeat            = "heartbeat"
	EventConnected            = "connected"
)

// Event is one progress notification: a type, a timestamp, and
// event-specific fields flattened alongside them.
type Event map[string]interface{}

// NewEvent stamps an event with its type and the current UTC time.
func NewEvent(eventType string, data map[string]interface{}) Event {
	e := Event{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range data {
		e[k] = v
	}
	return e
}

// Type returns the event's type field.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Terminal reports whether the event ends the session's stream.
func (e Event) Terminal() bool {
	switch e.Type() {
	case EventResearchComplete, EventError:
		return true
	}
	return false
}

// Broker fans events out to per-session subscribers. The returned cancel
// function must be called when the subscriber is done.
type Broker interface {
	Publish(ctx context.Context, sessionID, eventType string, data map[string]interface{})
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}
