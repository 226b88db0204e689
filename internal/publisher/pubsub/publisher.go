// Package pubsub publishes archive events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

// EventType is attached to every message as the event_type attribute.
const EventType = "TabArchived"

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publisher *pubsub.Publisher
}

var _ harvest.Publisher = (*Publisher)(nil)

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish marshals the payload to JSON and waits for the server ack. The
// topic is fixed by the wrapped publisher; the argument is ignored.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	msg, err := newMessage(payload)
	if err != nil {
		return "", err
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func newMessage(payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{"event_type": EventType}
	if record, ok := payload.(harvest.ArchivedTab); ok {
		attrs["record_id"] = record.ID
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}
