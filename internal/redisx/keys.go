package redisx

import "time"

const (
	// Cart per user: hash cart:{user_id} -> {line_key: json line}
	KeyCart = "cart:%s"

	// Idempotency create order: idem:order:create:{user_id}:{key} -> order number
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order view: order:{number} -> json
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 7 * 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour

	// TTLIdempotencyPending bounds a claim whose request never finished.
	TTLIdempotencyPending = 30 * time.Second
)
