package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Nudger asks a dispatcher to run soon.
type Nudger interface {
	Nudge(kind domain.JobKind)
}

// DeadLetterService handles operator actions on dead letters and queue stats.
type DeadLetterService struct {
	repo    Repository
	trigger Nudger
	now     func() time.Time
}

// NewDeadLetterService creates a new dead letter service. trigger may be nil.
func NewDeadLetterService(repo Repository, trigger Nudger) *DeadLetterService {
	return &DeadLetterService{
		repo:    repo,
		trigger: trigger,
		now:     time.Now,
	}
}

// List returns dead letters, newest first.
func (s *DeadLetterService) List(ctx context.Context, filter DeadLetterFilter) ([]*domain.DeadLetter, error) {
	return s.repo.ListDeadLetters(ctx, filter)
}

// Get returns a dead letter by ID.
func (s *DeadLetterService) Get(ctx context.Context, id string) (*domain.DeadLetter, error) {
	return s.repo.GetDeadLetter(ctx, id)
}

// SetSuppressed marks a dead letter as (not) suppressed. Suppressed dead
// letters are hidden by default and cannot be retried.
func (s *DeadLetterService) SetSuppressed(ctx context.Context, id string, suppressed bool) (*domain.DeadLetter, error) {
	dl, err := s.repo.SetSuppressed(ctx, id, suppressed, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.Info("dead letter suppression changed", "dead_letter_id", id, "suppressed", suppressed)
	return dl, nil
}

// Retry re-queues the job behind a dead letter with a fresh attempt budget.
// Attempts are never reset, so the job's history stays visible.
func (s *DeadLetterService) Retry(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.repo.RetryDeadLetter(ctx, id, MaxAttempts, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("retry dead letter: %w", err)
	}

	slog.Info("dead letter retried",
		"dead_letter_id", id,
		"job_id", job.ID,
		"kind", job.Kind,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
	)

	if s.trigger != nil {
		s.trigger.Nudge(job.Kind)
	}
	return job, nil
}

// Stats returns queue counts and refreshes the queue gauges.
func (s *DeadLetterService) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	RecordQueueStats(stats)
	return stats, nil
}
