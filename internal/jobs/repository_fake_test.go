package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// memRepository is an in-memory Repository. ClaimJob runs decide under the
// repository lock, the way the postgres implementation runs it under a row lock.
type memRepository struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	deadLetters map[string]*domain.DeadLetter

	claimErr   error
	listDueErr error
	claims     int
}

func newMemRepository() *memRepository {
	return &memRepository{
		jobs:        make(map[string]*domain.Job),
		deadLetters: make(map[string]*domain.DeadLetter),
	}
}

func (m *memRepository) put(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memRepository) job(id string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memRepository) deadLetterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deadLetters)
}

func (m *memRepository) InsertJobs(_ context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := make([]*domain.Job, 0, len(jobs))
	for _, job := range jobs {
		exists := false
		for _, existing := range m.jobs {
			if existing.EventID == job.EventID && existing.Kind == job.Kind {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		stored := *job
		m.jobs[job.ID] = &stored
		created = append(created, job)
	}
	return created, nil
}

func (m *memRepository) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (m *memRepository) ListDue(_ context.Context, kind domain.JobKind, now time.Time, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listDueErr != nil {
		return nil, m.listDueErr
	}

	var due []domain.Job
	for _, job := range m.jobs {
		if job.Kind == kind && job.Status == domain.JobStatusQueued && !job.DeliverAfterAt.After(now) {
			due = append(due, *job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DeliverAfterAt.Equal(due[j].DeliverAfterAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].DeliverAfterAt.Before(due[j].DeliverAfterAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memRepository) ClaimJob(_ context.Context, id string, decide ClaimFunc) (ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if m.claimErr != nil {
		return ClaimResult{}, m.claimErr
	}

	job, ok := m.jobs[id]
	if !ok {
		return ClaimResult{Outcome: ClaimSkipped, Reason: SkipMissing}, nil
	}

	result := decide(*job)
	switch result.Outcome {
	case ClaimAcquired:
		updated := result.Job
		m.jobs[id] = &updated
	case ClaimDeadLettered:
		updated := result.Job
		m.jobs[id] = &updated
		m.upsertDeadLetter(result.DeadLetter)
	}
	return result, nil
}

func (m *memRepository) upsertDeadLetter(dl *domain.DeadLetter) {
	if existing, ok := m.deadLetters[dl.ID]; ok {
		dl.Suppressed = existing.Suppressed
		dl.ManualRetryCount = existing.ManualRetryCount
		dl.CreatedAt = existing.CreatedAt
	}
	stored := *dl
	m.deadLetters[dl.ID] = &stored
}

func (m *memRepository) resolve(id string, apply func(job *domain.Job)) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrJobNotClaimed
	}
	apply(job)
	return nil
}

func (m *memRepository) MarkSent(_ context.Context, id, providerMessageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(id, func(job *domain.Job) {
		job.Status = domain.JobStatusSent
		job.ProviderMessageID = providerMessageID
		job.SentAt = &at
		job.UpdatedAt = at
	})
}

func (m *memRepository) MarkRetry(_ context.Context, id, lastError string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(id, func(job *domain.Job) {
		job.Status = domain.JobStatusQueued
		job.LastError = lastError
		job.UpdatedAt = at
	})
}

func (m *memRepository) MarkFailed(_ context.Context, dl *domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.resolve(dl.ID, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.LastError = dl.Error.Message
		job.FailedAt = &dl.UpdatedAt
		job.UpdatedAt = dl.UpdatedAt
	})
	if err != nil {
		return err
	}
	m.upsertDeadLetter(dl)
	return nil
}

func (m *memRepository) RequeueStale(_ context.Context, kind domain.JobKind, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, job := range m.jobs {
		if job.Kind == kind && job.Status == domain.JobStatusProcessing &&
			job.LastAttemptAt != nil && job.LastAttemptAt.Before(olderThan) {
			job.Status = domain.JobStatusQueued
			n++
		}
	}
	return n, nil
}

func (m *memRepository) ListDeadLetters(_ context.Context, filter DeadLetterFilter) ([]*domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.DeadLetter, 0)
	for _, dl := range m.deadLetters {
		if filter.Kind != nil && dl.Kind != *filter.Kind {
			continue
		}
		if filter.UserID != "" && dl.UserID != filter.UserID {
			continue
		}
		if dl.Suppressed && !filter.IncludeSuppressed {
			continue
		}
		copied := *dl
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepository) GetDeadLetter(_ context.Context, id string) (*domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return nil, ErrDeadLetterNotFound
	}
	copied := *dl
	return &copied, nil
}

func (m *memRepository) SetSuppressed(_ context.Context, id string, suppressed bool, at time.Time) (*domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return nil, ErrDeadLetterNotFound
	}
	dl.Suppressed = suppressed
	dl.UpdatedAt = at
	copied := *dl
	return &copied, nil
}

func (m *memRepository) RetryDeadLetter(_ context.Context, id string, budget int, at time.Time) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return nil, ErrDeadLetterNotFound
	}
	if dl.Suppressed {
		return nil, ErrDeadLetterSuppressed
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != domain.JobStatusFailed {
		return nil, ErrJobNotFailed
	}

	job.Status = domain.JobStatusQueued
	job.MaxAttempts = job.Attempts + budget
	job.LastAttemptAt = nil
	job.FailedAt = nil
	job.DeliverAfterAt = at
	job.UpdatedAt = at
	dl.ManualRetryCount++
	dl.UpdatedAt = at

	out := *job
	return &out, nil
}

func (m *memRepository) Stats(_ context.Context) (*domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.QueueStats{DeadLetters: int64(len(m.deadLetters))}
	for _, job := range m.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusSent:
			stats.Sent++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
