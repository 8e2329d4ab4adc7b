package service

import (
	"context"
	"encoding/json"

	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "ConsumerService"

// EventRelay forwards chat events outside the process (NATS JetStream).
type EventRelay interface {
	Publish(ctx context.Context, event events.Event) error
}

// HistoryNotifier pushes a history change to the owner's live connections.
// Typically implemented by the WebSocket Hub.
type HistoryNotifier interface {
	NotifyHistoryUpdated(ownerId string, event events.Event)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	relay      EventRelay
	notifier   HistoryNotifier
	logger     logger.ILogger
}

// NewConsumerService drains the chat event topic. relay and notifier may be nil.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	relay EventRelay,
	notifier HistoryNotifier,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		relay:      relay,
		notifier:   notifier,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	// every outcome is acked: a relay failure must not redeliver into the hub
	defer msg.Ack()

	var event events.BaseEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal chat event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}

	ownerId := events.OwnerOf(event)
	cs.logger.Debug(consumerModule, "Processing chat event", map[string]interface{}{
		"type":     event.Type,
		"owner_id": ownerId,
	})

	if cs.notifier != nil && ownerId != "" {
		cs.notifier.NotifyHistoryUpdated(ownerId, event)
	}

	if cs.relay != nil {
		if err := cs.relay.Publish(ctx, event); err != nil {
			cs.logger.Warn(consumerModule, "Failed to relay chat event", map[string]interface{}{
				"type":  event.Type,
				"error": err.Error(),
			})
		}
	}
}
