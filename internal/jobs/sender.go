package jobs

import (
	"context"
	"errors"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Content is the rendered message a job delivers.
type Content struct {
	Subject string
	Body    string
}

// Receipt is what a provider returns for an accepted message.
type Receipt struct {
	ProviderMessageID string
}

// Sender delivers content to one recipient on one channel.
type Sender interface {
	Kind() domain.JobKind
	Send(ctx context.Context, to string, content Content) (Receipt, error)
}

// isRetryable checks if an error is retryable. Errors that do not declare
// themselves are treated as transient.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
