package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Envelope wraps every published order event. CorrelationID is the order
// id so all events for one order keep their relative order on the topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	UserID        string          `json:"user_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID      string `json:"order_id"`
	UserID       string `json:"user_id"`
	TotalCents   int64  `json:"total_cents"`
	Flash        bool   `json:"flash,omitempty"`
	PointsEarned int64  `json:"points_earned,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	FromStatus Status `json:"from_status"`
	ToStatus   Status `json:"to_status"`
	TotalCents int64  `json:"total_cents"`
}
