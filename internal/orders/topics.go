package orders

const (
	// TopicOrderNotifications carries every owner-facing order event; the
	// notifier worker consumes it and hands payloads to the delivery
	// channel.
	TopicOrderNotifications = "order.notifications"
)

// Partition key = order_id, so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
