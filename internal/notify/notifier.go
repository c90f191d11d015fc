// Package notify publishes owner-facing order events to the notification
// topic and hosts the worker that drains it. The actual delivery channel
// (email, push) sits behind the worker's deliver hook.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/freshfold/laundry-orders/internal/kafka"
	"github.com/freshfold/laundry-orders/internal/orders"
)

// KafkaNotifier implements orders.Notifier by wrapping each event in the
// standard envelope and publishing it keyed by order id.
type KafkaNotifier struct {
	Producer *kafkax.Producer
	Service  string
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, eventType string, payload any) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.Service,
		UserID:        userID,
		CorrelationID: correlationID(payload, userID),
		Payload:       kafkax.MustMarshal(payload),
	}
	n.Producer.Publish(orders.PartitionKey(ev.CorrelationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

func correlationID(payload any, fallback string) string {
	switch p := payload.(type) {
	case orders.OrderCreatedPayload:
		return p.OrderID
	case orders.OrderStatusChangedPayload:
		return p.OrderID
	default:
		return fallback
	}
}
