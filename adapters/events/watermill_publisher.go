package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

// DefaultTopic carries session state changes
const DefaultTopic = "booking.session"

// StateChangeEvent is the wire form of a session transition
type StateChangeEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	At     int64  `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishStateChange publishes a session transition
func (p *WatermillPublisher) PublishStateChange(ctx context.Context, change core.StateChange) error {
	event := StateChangeEvent{
		From:   change.From.String(),
		To:     change.To.String(),
		Reason: change.Reason,
		At:     change.At.UnixMilli(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeStateChange parses a message produced by WatermillPublisher
func DecodeStateChange(msg *message.Message) (StateChangeEvent, error) {
	var event StateChangeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return StateChangeEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}
