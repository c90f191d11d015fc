package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/freshfold/laundry-orders/internal/orders"
	"github.com/freshfold/laundry-orders/internal/redisx"
)

// DeliverFunc hands a decoded notification to the delivery channel.
type DeliverFunc func(ctx context.Context, ev orders.Envelope) error

// Dispatcher consumes the notification topic, dedups by event id and
// forwards to the delivery hook. Plugged into the kafka consumer as its
// handler.
type Dispatcher struct {
	Redis   *redis.Client
	Deliver DeliverFunc
	Log     *slog.Logger
}

// LogDelivery is the default delivery hook: it records the notification.
// Real channels replace it at wiring time.
func LogDelivery(log *slog.Logger) DeliverFunc {
	return func(ctx context.Context, ev orders.Envelope) error {
		log.Info("notification delivered",
			"event_id", ev.EventID, "event_type", ev.EventType,
			"user_id", ev.UserID, "order_id", ev.CorrelationID)
		return nil
	}
}

func (d *Dispatcher) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var ev orders.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		// poison message, log and commit past it
		d.Log.Warn("undecodable notification dropped", "err", err)
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", ev.EventID)
	exists, err := redisx.Exists(ctx, d.Redis, dkey)
	if err != nil {
		d.Log.Warn("dedup check failed, delivering anyway", "event_id", ev.EventID, "err", err)
	}
	if exists {
		return nil
	}

	if err := d.Deliver(ctx, ev); err != nil {
		return err
	}
	_ = d.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
