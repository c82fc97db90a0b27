package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// Event is one domain lifecycle event published for downstream consumers.
type Event struct {
	Type       string         `json:"type"`
	ArtworkID  string         `json:"artworkId,omitempty"`
	OrderID    string         `json:"orderId,omitempty"`
	ReviewID   string         `json:"reviewId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// PubSubEventPublisher publishes artwork and order lifecycle events to their
// Pub/Sub topics.
type PubSubEventPublisher struct {
	artworkTopic *pubsub.Topic
	orderTopic   *pubsub.Topic
	marshal      func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(artworkTopic, orderTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if artworkTopic == nil || orderTopic == nil {
		return nil, errors.New("pubsub event publisher: both topics are required")
	}
	return &PubSubEventPublisher{
		artworkTopic: artworkTopic,
		orderTopic:   orderTopic,
		marshal:      json.Marshal,
	}, nil
}

// PublishArtworkEvent enqueues an artwork lifecycle event.
func (p *PubSubEventPublisher) PublishArtworkEvent(ctx context.Context, event Event) (string, error) {
	if p == nil || p.artworkTopic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	return p.publish(ctx, p.artworkTopic, event)
}

// PublishOrderEvent enqueues an order lifecycle event.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event Event) (string, error) {
	if p == nil || p.orderTopic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	return p.publish(ctx, p.orderTopic, event)
}

func (p *PubSubEventPublisher) publish(ctx context.Context, topic *pubsub.Topic, event Event) (string, error) {
	if strings.TrimSpace(event.Type) == "" {
		return "", errors.New("pubsub event publisher: event type is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "artworkId", event.ArtworkID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "reviewId", event.ReviewID)

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
