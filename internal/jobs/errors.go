package jobs

import "errors"

// Repository errors.
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrContactNotFound    = errors.New("user contact not found")
)

// Dead letter administration errors.
var (
	ErrDeadLetterSuppressed = errors.New("dead letter is suppressed")
	ErrJobNotFailed         = errors.New("job is not in failed state")
)

// Delivery errors.
var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrEmptyBody        = errors.New("empty message body")
	ErrSenderPanic      = errors.New("sender panicked")
	ErrJobNotClaimed    = errors.New("job is not claimed by this dispatcher")
)
