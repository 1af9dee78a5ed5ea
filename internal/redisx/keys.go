package redisx

import "time"

const (
	// Read cache for GET /order/:id: order:{order_id} -> order JSON
	KeyOrderCache = "order:%d"

	// Dedup for event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
