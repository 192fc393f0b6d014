package redisx

import "time"

const (
	// Cache status order: order_status:{order_id} -> StatusEntry JSON
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Payment callback guard: idem:payment:confirm:{token}
	KeyPaymentConfirm = "idem:payment:confirm:%s"
)

var (
	TTLStatusCache    = 5 * time.Minute
	TTLDedup          = 48 * time.Hour
	TTLPaymentConfirm = 10 * time.Minute
)
