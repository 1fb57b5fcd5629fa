// Package jobs provides the outbound delivery queue: enqueueing channel jobs
// for events, dispatching them with claim semantics, and dead-lettering.
package jobs

import (
	"context"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Repository defines the interface for job queue data access.
type Repository interface {
	// InsertJobs inserts jobs, skipping any (event_id, kind) pair that already
	// exists. It returns the jobs it inserted.
	InsertJobs(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// ListDue returns up to limit queued jobs of kind with deliver_after_at <= now,
	// oldest first.
	ListDue(ctx context.Context, kind domain.JobKind, now time.Time, limit int) ([]domain.Job, error)

	// ClaimJob locks the job row, passes the current row to decide and persists
	// the decision in the same transaction. Only ClaimAcquired and
	// ClaimDeadLettered outcomes write anything.
	ClaimJob(ctx context.Context, id string, decide ClaimFunc) (ClaimResult, error)

	// MarkSent, MarkRetry and MarkFailed resolve a processing job.
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error
	MarkRetry(ctx context.Context, id, lastError string, at time.Time) error
	// MarkFailed sets the job failed and upserts its dead letter atomically.
	MarkFailed(ctx context.Context, dl *domain.DeadLetter) error

	// RequeueStale returns processing jobs whose last attempt started before
	// olderThan to queued, leaving attempts untouched.
	RequeueStale(ctx context.Context, kind domain.JobKind, olderThan time.Time) (int64, error)

	ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*domain.DeadLetter, error)
	GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error)
	SetSuppressed(ctx context.Context, id string, suppressed bool, at time.Time) (*domain.DeadLetter, error)
	// RetryDeadLetter re-queues the failed job behind a dead letter, granting
	// budget more attempts. Suppressed dead letters return ErrDeadLetterSuppressed.
	RetryDeadLetter(ctx context.Context, id string, budget int, at time.Time) (*domain.Job, error)

	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// ContactDirectory resolves delivery addresses of users.
type ContactDirectory interface {
	GetContact(ctx context.Context, userID string) (*domain.UserContact, error)
}

// DeadLetterFilter holds filter options for listing dead letters.
type DeadLetterFilter struct {
	Kind              *domain.JobKind
	UserID            string
	IncludeSuppressed bool
	Limit             int
	Offset            int
}

// ClaimOutcome is the result of a claim attempt.
type ClaimOutcome string

// Claim outcomes.
const (
	ClaimAcquired     ClaimOutcome = "acquired"
	ClaimSkipped      ClaimOutcome = "skipped"
	ClaimDeadLettered ClaimOutcome = "dead_lettered"
)

// SkipReason explains why a claim did not acquire a job.
type SkipReason string

// Skip reasons.
const (
	SkipNotQueued    SkipReason = "not_queued"
	SkipNotDue       SkipReason = "not_due"
	SkipBackoff      SkipReason = "backoff"
	SkipDeadLettered SkipReason = "dead_lettered"
	SkipMissing      SkipReason = "missing"
)

// ClaimResult describes a claim decision. Job is the row as it should be
// persisted; DeadLetter is set for ClaimDeadLettered.
type ClaimResult struct {
	Outcome    ClaimOutcome
	Reason     SkipReason
	Job        domain.Job
	DeadLetter *domain.DeadLetter
}

// ClaimFunc decides a claim from the locked job row.
type ClaimFunc func(job domain.Job) ClaimResult
