package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisBroker bridges session events over Redis pub/sub so SSE subscribers
// can attach to any instance.
type RedisBroker struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBroker creates a broker over an existing Redis client.
func NewRedisBroker(client *redis.Client, logger *log.Logger) *RedisBroker {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisBroker{client: client, logger: logger}
}

func sessionChannel(sessionID string) string {
	return fmt.Sprintf("scout:session:%s:events", sessionID)
}

// Publish sends the event to the session's channel. Failures are logged and
// swallowed; the orchestrator never sees them.
func (b *RedisBroker) Publish(ctx context.Context, sessionID, eventType string, data map[string]interface{}) {
	event := NewEvent(eventType, data)
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Printf("marshal %s event: %v", eventType, err)
		return
	}
	if err := b.client.Publish(ctx, sessionChannel(sessionID), payload).Err(); err != nil {
		b.logger.Printf("publish %s event for session %s: %v", eventType, sessionID, err)
	}
}

// Subscribe attaches to the session's channel and decodes events until
// cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, sessionChannel(sessionID))
	// force the subscription before returning so no events are missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Printf("decode event on session %s: %v", sessionID, err)
				continue
			}
			select {
			case out <- event:
			default:
				b.logger.Printf("dropping %s event for slow subscriber on session %s", event.Type(), sessionID)
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Printf("close subscription for session %s: %v", sessionID, err)
		}
	}
	return out, cancel, nil
}
