package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope published for every outbox event.
type Message struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	BusinessID  uuid.UUID       `json:"business_id"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Publisher delivers messages to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	// Subscribe streams messages until ctx is cancelled, then closes the
	// channel.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Ping(ctx context.Context) error
	Close() error
}
