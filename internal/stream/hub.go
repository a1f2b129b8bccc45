package stream

import (
	"context"
	"log"
	"sync"
)

const subscriberBuffer = 64

// Hub is an in-process broker. It serves single-instance deployments and
// tests; a slow subscriber drops events rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{subs: make(map[string]map[chan Event]struct{}), logger: logger}
}

// Publish delivers the event to every current subscriber of the session.
func (h *Hub) Publish(_ context.Context, sessionID, eventType string, data map[string]interface{}) {
	event := NewEvent(eventType, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default:
			h.logger.Printf("dropping %s event for slow subscriber on session %s", eventType, sessionID)
		}
	}
}

// Subscribe registers a new subscriber for the session.
func (h *Hub) Subscribe(_ context.Context, sessionID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok {
			if _, member := set[ch]; member {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel, nil
}
