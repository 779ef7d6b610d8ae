// Package events publishes order and return lifecycle events for downstream
// consumers such as inventory sync and accounting.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated  = "order.created"
	TypeReturnCreated = "return.created"
)

// Event is the envelope written to the broker. Payload holds the order or
// return as returned by the API.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Key       string          `json:"-"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func New(eventType string, key string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Key:       key,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}
