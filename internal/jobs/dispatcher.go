package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/go-playground/validator/v10"
)

// MaxAttempts is the attempt budget a new job gets, and the budget a manual
// retry adds.
const MaxAttempts = 5

// DefaultBackoff is the minimum wait after the Nth attempt, indexed by the
// number of attempts already made. Indices past the end use the last value.
var DefaultBackoff = []time.Duration{0, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute}

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	BatchSize   int
	TickBudget  time.Duration
	SendTimeout time.Duration
	StaleAfter  time.Duration
	Backoff     []time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:   50,
		TickBudget:  45 * time.Second,
		SendTimeout: 15 * time.Second,
		StaleAfter:  10 * time.Minute,
		Backoff:     DefaultBackoff,
	}
}

// TickStats summarizes one dispatcher tick.
type TickStats struct {
	Requeued   int64 `json:"requeued"`
	Candidates int   `json:"candidates"`
	Claimed    int   `json:"claimed"`
	Skipped    int   `json:"skipped"`
	Sent       int   `json:"sent"`
	Retried    int   `json:"retried"`
	Failed     int   `json:"failed"`
}

// Dispatcher delivers queued jobs of one kind through its sender.
type Dispatcher struct {
	kind     domain.JobKind
	config   DispatcherConfig
	repo     Repository
	sender   Sender
	validate *validator.Validate
	now      func() time.Time
}

// NewDispatcher creates a new dispatcher for the sender's kind.
func NewDispatcher(config DispatcherConfig, repo Repository, sender Sender) *Dispatcher {
	if len(config.Backoff) == 0 {
		config.Backoff = DefaultBackoff
	}
	return &Dispatcher{
		kind:     sender.Kind(),
		config:   config,
		repo:     repo,
		sender:   sender,
		validate: domain.NewValidator(),
		now:      time.Now,
	}
}

// Kind returns the job kind the dispatcher serves.
func (d *Dispatcher) Kind() domain.JobKind {
	return d.kind
}

// Tick runs one dispatch pass. It stops claiming new jobs once the tick
// budget is spent or ctx is done; a job already claimed is always resolved.
func (d *Dispatcher) Tick(ctx context.Context) (TickStats, error) {
	var stats TickStats
	start := d.now()
	deadline := start.Add(d.config.TickBudget)

	requeued, err := d.repo.RequeueStale(ctx, d.kind, start.Add(-d.config.StaleAfter))
	if err != nil {
		slog.Error("failed to requeue stale jobs", "kind", d.kind, "error", err)
	} else if requeued > 0 {
		stats.Requeued = requeued
		recordStaleRequeued(d.kind, requeued)
		slog.Warn("requeued stale processing jobs", "kind", d.kind, "count", requeued)
	}

	candidates, err := d.repo.ListDue(ctx, d.kind, start, d.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list due jobs: %w", err)
	}
	stats.Candidates = len(candidates)

	for _, candidate := range candidates {
		if ctx.Err() != nil || !d.now().Before(deadline) {
			slog.Info("dispatch tick budget exhausted",
				"kind", d.kind,
				"processed", stats.Claimed+stats.Skipped,
				"remaining", len(candidates)-stats.Claimed-stats.Skipped,
			)
			break
		}

		result, err := d.repo.ClaimJob(ctx, candidate.ID, d.decide)
		if err != nil {
			slog.Error("failed to claim job", "job_id", candidate.ID, "kind", d.kind, "error", err)
			stats.Skipped++
			continue
		}

		switch result.Outcome {
		case ClaimSkipped:
			stats.Skipped++
			recordClaimSkipped(d.kind, result.Reason)
			continue
		case ClaimDeadLettered:
			stats.Skipped++
			stats.Failed++
			recordClaimSkipped(d.kind, SkipDeadLettered)
			recordDeadLettered(d.kind, domain.DeadLetterMaxAttempts)
			slog.Warn("job exhausted its attempts",
				"job_id", result.Job.ID,
				"event_id", result.Job.EventID,
				"kind", d.kind,
				"attempts", result.Job.Attempts,
			)
			continue
		}

		stats.Claimed++
		switch d.process(ctx, result.Job) {
		case resultSent:
			stats.Sent++
		case resultRetry:
			stats.Retried++
		case resultFailed:
			stats.Failed++
		}
	}

	return stats, nil
}

// decide is the claim decision for a locked job row.
func (d *Dispatcher) decide(job domain.Job) ClaimResult {
	return decideClaim(job, d.now().UTC(), d.config.Backoff)
}

func decideClaim(job domain.Job, now time.Time, backoff []time.Duration) ClaimResult {
	if job.Status != domain.JobStatusQueued {
		return ClaimResult{Outcome: ClaimSkipped, Reason: SkipNotQueued, Job: job}
	}
	if job.DeliverAfterAt.After(now) {
		return ClaimResult{Outcome: ClaimSkipped, Reason: SkipNotDue, Job: job}
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = domain.JobStatusFailed
		job.FailedAt = &now
		job.UpdatedAt = now
		message := fmt.Sprintf("gave up after %d attempts", job.Attempts)
		if job.LastError != "" {
			message += ": " + job.LastError
		}
		return ClaimResult{
			Outcome:    ClaimDeadLettered,
			Reason:     SkipDeadLettered,
			Job:        job,
			DeadLetter: domain.NewDeadLetter(job, domain.DeadLetterMaxAttempts, message, now),
		}
	}

	if job.LastAttemptAt != nil && now.Before(job.LastAttemptAt.Add(backoffFor(backoff, job.Attempts))) {
		return ClaimResult{Outcome: ClaimSkipped, Reason: SkipBackoff, Job: job}
	}

	job.Attempts++
	job.Status = domain.JobStatusProcessing
	job.LastAttemptAt = &now
	job.UpdatedAt = now
	return ClaimResult{Outcome: ClaimAcquired, Job: job}
}

func backoffFor(table []time.Duration, attempts int) time.Duration {
	if len(table) == 0 {
		return 0
	}
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(table) {
		return table[len(table)-1]
	}
	return table[attempts]
}

type resolution int

const (
	resultSent resolution = iota
	resultRetry
	resultFailed
)

func (d *Dispatcher) process(ctx context.Context, job domain.Job) resolution {
	// Resolution writes must land even if the tick is cancelled mid-send.
	resolveCtx := context.WithoutCancel(ctx)

	if err := d.validateJob(job); err != nil {
		return d.fail(resolveCtx, job, domain.DeadLetterValidation, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	start := time.Now()
	receipt, err := d.safeSend(sendCtx, job)
	cancel()
	recordSendDuration(d.kind, time.Since(start))

	if err == nil {
		if markErr := d.repo.MarkSent(resolveCtx, job.ID, receipt.ProviderMessageID, d.now().UTC()); markErr != nil {
			slog.Error("failed to mark job as sent", "job_id", job.ID, "error", markErr)
		}
		recordProcessed(d.kind, "sent")
		slog.Debug("job sent",
			"job_id", job.ID,
			"event_id", job.EventID,
			"kind", d.kind,
			"provider_message_id", receipt.ProviderMessageID,
		)
		return resultSent
	}

	if !isRetryable(err) {
		return d.fail(resolveCtx, job, domain.DeadLetterProviderRejected, err)
	}

	slog.Warn("send failed, job requeued",
		"job_id", job.ID,
		"kind", d.kind,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)
	if markErr := d.repo.MarkRetry(resolveCtx, job.ID, err.Error(), d.now().UTC()); markErr != nil {
		slog.Error("failed to requeue job", "job_id", job.ID, "error", markErr)
	}
	recordProcessed(d.kind, "retry")
	return resultRetry
}

func (d *Dispatcher) fail(ctx context.Context, job domain.Job, code domain.DeadLetterErrorCode, cause error) resolution {
	now := d.now().UTC()
	job.Status = domain.JobStatusFailed
	job.LastError = cause.Error()
	job.FailedAt = &now
	job.UpdatedAt = now

	slog.Warn("job failed permanently",
		"job_id", job.ID,
		"event_id", job.EventID,
		"kind", d.kind,
		"code", code,
		"error", cause,
	)
	if err := d.repo.MarkFailed(ctx, domain.NewDeadLetter(job, code, cause.Error(), now)); err != nil {
		slog.Error("failed to dead-letter job", "job_id", job.ID, "error", err)
	}
	recordProcessed(d.kind, "failed")
	recordDeadLettered(d.kind, code)
	return resultFailed
}

func (d *Dispatcher) validateJob(job domain.Job) error {
	tag := "required,email"
	if job.Kind == domain.JobKindSMS {
		tag = "required,e164"
	}
	if err := d.validate.Var(job.Recipient, tag); err != nil {
		return fmt.Errorf("%w %q for %s", ErrInvalidRecipient, job.Recipient, job.Kind)
	}
	if job.Body == "" {
		return ErrEmptyBody
	}
	return nil
}

func (d *Dispatcher) safeSend(ctx context.Context, job domain.Job) (receipt Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sender panicked", "job_id", job.ID, "kind", d.kind, "panic", r)
			err = NewRetryableError(fmt.Errorf("%w: %v", ErrSenderPanic, r))
		}
	}()
	return d.sender.Send(ctx, job.Recipient, Content{Subject: job.Subject, Body: job.Body})
}
