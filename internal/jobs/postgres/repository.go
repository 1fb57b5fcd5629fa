// Package postgres provides PostgreSQL implementation of the job queue repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `
	id, kind, status, attempts, max_attempts, last_attempt_at, deliver_after_at,
	user_id, recipient, subject, body, event_id, last_error, provider_message_id,
	sent_at, failed_at, created_at, updated_at`

const deadLetterColumns = `
	id, kind, user_id, event_id, attempts, error_code, error_message, snapshot,
	suppressed, manual_retry_count, created_at, updated_at`

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements jobs.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertJobs inserts jobs, skipping (event_id, kind) pairs that already exist.
func (r *Repository) InsertJobs(ctx context.Context, items []*domain.Job) ([]*domain.Job, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO jobs (
			id, kind, status, attempts, max_attempts, deliver_after_at,
			user_id, recipient, subject, body, event_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id, kind) DO NOTHING
		RETURNING id
	`

	created := make([]*domain.Job, 0, len(items))
	for _, job := range items {
		var id string
		err := tx.QueryRow(ctx, query,
			job.ID,
			job.Kind,
			job.Status,
			job.Attempts,
			job.MaxAttempts,
			job.DeliverAfterAt,
			job.UserID,
			job.Recipient,
			job.Subject,
			job.Body,
			job.EventID,
			job.CreatedAt,
			job.UpdatedAt,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("insert %s job: %w", job.Kind, err)
		}
		created = append(created, job)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return created, nil
}

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	if !isJobID(id) {
		return nil, jobs.ErrJobNotFound
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListDue returns queued jobs of kind that are due, oldest first.
func (r *Repository) ListDue(ctx context.Context, kind domain.JobKind, now time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE kind = $1 AND status = 'queued' AND deliver_after_at <= $2
		ORDER BY created_at ASC, id
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, kind, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return result, nil
}

// ClaimJob locks the job row and persists the decision in one transaction.
func (r *Repository) ClaimJob(ctx context.Context, id string, decide jobs.ClaimFunc) (jobs.ClaimResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return jobs.ClaimResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.ClaimResult{Outcome: jobs.ClaimSkipped, Reason: jobs.SkipMissing}, nil
		}
		return jobs.ClaimResult{}, fmt.Errorf("lock job: %w", err)
	}

	result := decide(*current)

	switch result.Outcome {
	case jobs.ClaimAcquired:
		query := `
			UPDATE jobs
			SET status = $2, attempts = $3, last_attempt_at = $4, updated_at = $5
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, query,
			id, result.Job.Status, result.Job.Attempts, result.Job.LastAttemptAt, result.Job.UpdatedAt,
		); err != nil {
			return jobs.ClaimResult{}, fmt.Errorf("acquire job: %w", err)
		}

	case jobs.ClaimDeadLettered:
		query := `UPDATE jobs SET status = $2, failed_at = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.Exec(ctx, query,
			id, result.Job.Status, result.Job.FailedAt, result.Job.UpdatedAt,
		); err != nil {
			return jobs.ClaimResult{}, fmt.Errorf("fail job: %w", err)
		}
		if err := upsertDeadLetter(ctx, tx, result.DeadLetter); err != nil {
			return jobs.ClaimResult{}, err
		}

	default:
		return result, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return jobs.ClaimResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// MarkSent resolves a processing job as sent.
func (r *Repository) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'sent', provider_message_id = $2, last_error = '', sent_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return r.resolve(ctx, r.db, query, id, providerMessageID, at)
}

// MarkRetry returns a processing job to the queue.
func (r *Repository) MarkRetry(ctx context.Context, id, lastError string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'queued', last_error = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return r.resolve(ctx, r.db, query, id, lastError, at)
}

// MarkFailed fails a processing job and upserts its dead letter atomically.
func (r *Repository) MarkFailed(ctx context.Context, dl *domain.DeadLetter) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		UPDATE jobs
		SET status = 'failed', last_error = $2, failed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	if err := r.resolve(ctx, tx, query, dl.ID, dl.Error.Message, dl.UpdatedAt); err != nil {
		return err
	}

	if err := upsertDeadLetter(ctx, tx, dl); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) resolve(ctx context.Context, q querier, query, id, text string, at time.Time) error {
	result, err := q.Exec(ctx, query, id, text, at)
	if err != nil {
		return fmt.Errorf("resolve job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotClaimed, id)
	}
	return nil
}

// RequeueStale returns processing jobs whose lease expired to the queue.
func (r *Repository) RequeueStale(ctx context.Context, kind domain.JobKind, olderThan time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'queued', last_error = 'processing lease expired', updated_at = NOW()
		WHERE kind = $1 AND status = 'processing' AND last_attempt_at < $2
	`
	result, err := r.db.Exec(ctx, query, kind, olderThan)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListDeadLetters retrieves dead letters, newest first.
func (r *Repository) ListDeadLetters(ctx context.Context, filter jobs.DeadLetterFilter) ([]*domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if !filter.IncludeSuppressed {
		query += " AND NOT suppressed"
	}

	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, *filter.Kind)
		argNum++
	}

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, filter.UserID)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.DeadLetter, 0)
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		result = append(result, dl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return result, nil
}

// GetDeadLetter retrieves a dead letter by ID.
func (r *Repository) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	if !isJobID(id) {
		return nil, jobs.ErrDeadLetterNotFound
	}
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`

	dl, err := scanDeadLetter(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return dl, nil
}

// SetSuppressed updates the suppressed flag of a dead letter.
func (r *Repository) SetSuppressed(ctx context.Context, id string, suppressed bool, at time.Time) (*domain.DeadLetter, error) {
	if !isJobID(id) {
		return nil, jobs.ErrDeadLetterNotFound
	}
	query := `
		UPDATE dead_letters SET suppressed = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + deadLetterColumns

	dl, err := scanDeadLetter(r.db.QueryRow(ctx, query, id, suppressed, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("update dead letter: %w", err)
	}
	return dl, nil
}

// RetryDeadLetter re-queues the failed job behind a dead letter.
func (r *Repository) RetryDeadLetter(ctx context.Context, id string, budget int, at time.Time) (*domain.Job, error) {
	if !isJobID(id) {
		return nil, jobs.ErrDeadLetterNotFound
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var suppressed bool
	err = tx.QueryRow(ctx, `SELECT suppressed FROM dead_letters WHERE id = $1 FOR UPDATE`, id).Scan(&suppressed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("lock dead letter: %w", err)
	}
	if suppressed {
		return nil, jobs.ErrDeadLetterSuppressed
	}

	requeue := `
		UPDATE jobs
		SET status = 'queued', max_attempts = attempts + $2, deliver_after_at = $3,
			last_attempt_at = NULL, failed_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'failed'
		RETURNING ` + jobColumns

	job, err := scanJob(tx.QueryRow(ctx, requeue, id, budget, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrJobNotFailed
		}
		return nil, fmt.Errorf("requeue job: %w", err)
	}

	bump := `UPDATE dead_letters SET manual_retry_count = manual_retry_count + 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, bump, id, at); err != nil {
		return nil, fmt.Errorf("update dead letter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return job, nil
}

// Stats returns job counts by status and the number of open dead letters.
func (r *Repository) Stats(ctx context.Context) (*domain.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			(SELECT COUNT(*) FROM dead_letters WHERE NOT suppressed)
		FROM jobs
	`
	var stats domain.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Queued,
		&stats.Processing,
		&stats.Sent,
		&stats.Failed,
		&stats.DeadLetters,
	)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func upsertDeadLetter(ctx context.Context, q querier, dl *domain.DeadLetter) error {
	snapshot, err := json.Marshal(dl.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO dead_letters (
			id, kind, user_id, event_id, attempts, error_code, error_message, snapshot, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		dl.ID,
		dl.Kind,
		dl.UserID,
		dl.EventID,
		dl.Attempts,
		dl.Error.Code,
		dl.Error.Message,
		snapshot,
		dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert dead letter: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastAttemptAt,
		&job.DeliverAfterAt,
		&job.UserID,
		&job.Recipient,
		&job.Subject,
		&job.Body,
		&job.EventID,
		&job.LastError,
		&job.ProviderMessageID,
		&job.SentAt,
		&job.FailedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanDeadLetter(row pgx.Row) (*domain.DeadLetter, error) {
	var (
		dl       domain.DeadLetter
		snapshot []byte
	)
	err := row.Scan(
		&dl.ID,
		&dl.Kind,
		&dl.UserID,
		&dl.EventID,
		&dl.Attempts,
		&dl.Error.Code,
		&dl.Error.Message,
		&snapshot,
		&dl.Suppressed,
		&dl.ManualRetryCount,
		&dl.CreatedAt,
		&dl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &dl.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &dl, nil
}

// isJobID reports whether id can name a row in jobs or dead_letters. Both are
// keyed by uuid, and PostgreSQL rejects other text with a cast error.
func isJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
