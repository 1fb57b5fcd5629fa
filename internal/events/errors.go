package events

import "errors"

// Event errors.
var (
	ErrEventNotFound         = errors.New("event not found")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key too long")
)
