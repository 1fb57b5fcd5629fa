package domain

import "time"

// JobKind is the delivery channel of a job.
type JobKind string

// Job kinds.
const (
	JobKindEmail JobKind = "email"
	JobKindSMS   JobKind = "sms"
)

// IsValid checks if the job kind is known.
func (k JobKind) IsValid() bool {
	return k == JobKindEmail || k == JobKindSMS
}

// JobStatus represents the status of a job in the queue.
type JobStatus string

// Job statuses.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition may leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSent || s == JobStatusFailed
}

// Job is one outbound delivery for one event on one channel.
type Job struct {
	ID                string     `json:"id"`
	Kind              JobKind    `json:"kind"`
	Status            JobStatus  `json:"status"`
	Attempts          int        `json:"attempts"`
	MaxAttempts       int        `json:"max_attempts"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	DeliverAfterAt    time.Time  `json:"deliver_after_at"`
	UserID            string     `json:"user_id"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject,omitempty"`
	Body              string     `json:"body"`
	EventID           string     `json:"event_id"`
	LastError         string     `json:"last_error,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DeadLetterErrorCode classifies why a job was dead-lettered.
type DeadLetterErrorCode string

// Dead letter error codes.
const (
	DeadLetterMaxAttempts      DeadLetterErrorCode = "max_attempts"
	DeadLetterValidation       DeadLetterErrorCode = "validation"
	DeadLetterProviderRejected DeadLetterErrorCode = "provider_rejected"
)

// DeadLetterError describes the failure that retired a job.
type DeadLetterError struct {
	Code    DeadLetterErrorCode `json:"code"`
	Message string              `json:"message"`
}

// DeadLetter is a permanently failed job kept for inspection and manual retry.
// ID equals the job ID.
type DeadLetter struct {
	ID               string          `json:"id"`
	Kind             JobKind         `json:"kind"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	UserID           string          `json:"user_id"`
	EventID          string          `json:"event_id"`
	Attempts         int             `json:"attempts"`
	Error            DeadLetterError `json:"error"`
	Snapshot         Job             `json:"snapshot"`
	Suppressed       bool            `json:"suppressed"`
	ManualRetryCount int             `json:"manual_retry_count"`
}

// NewDeadLetter builds a dead letter from the job as it is at failure time.
func NewDeadLetter(job Job, code DeadLetterErrorCode, message string, at time.Time) *DeadLetter {
	return &DeadLetter{
		ID:        job.ID,
		Kind:      job.Kind,
		CreatedAt: at,
		UpdatedAt: at,
		UserID:    job.UserID,
		EventID:   job.EventID,
		Attempts:  job.Attempts,
		Error: DeadLetterError{
			Code:    code,
			Message: message,
		},
		Snapshot: job,
	}
}

// QueueStats contains counts of jobs by status.
type QueueStats struct {
	Queued      int64 `json:"queued"`
	Processing  int64 `json:"processing"`
	Sent        int64 `json:"sent"`
	Failed      int64 `json:"failed"`
	DeadLetters int64 `json:"dead_letters"`
}
