package redisx

import "time"

const (
	// Tracking cache: order_track:{order_id} -> serialized tracking view
	KeyOrderTracking = "order_track:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLTrackingCache = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
)
