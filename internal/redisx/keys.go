package redisx

import "time"

const (
	// Hydrated order cache: order:{order_id} -> JSON order
	KeyOrder = "order:%s"

	// Dedup for notification processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
