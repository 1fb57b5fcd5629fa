package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/stretchr/testify/assert"
)

func TestRepository_MalformedIDsAreNotFound(t *testing.T) {
	// No pool: malformed ids must be rejected before any query runs.
	repo := NewRepository(nil)
	ctx := context.Background()

	for _, id := range []string{"", "missing", "1; DROP TABLE jobs", "6f1c2a9e-zzzz-4b1f-9c1e-000000000000"} {
		_, err := repo.GetJob(ctx, id)
		assert.ErrorIs(t, err, jobs.ErrJobNotFound, id)

		_, err = repo.GetDeadLetter(ctx, id)
		assert.ErrorIs(t, err, jobs.ErrDeadLetterNotFound, id)

		_, err = repo.SetSuppressed(ctx, id, true, time.Now())
		assert.ErrorIs(t, err, jobs.ErrDeadLetterNotFound, id)

		_, err = repo.RetryDeadLetter(ctx, id, jobs.MaxAttempts, time.Now())
		assert.ErrorIs(t, err, jobs.ErrDeadLetterNotFound, id)
	}
}

func TestIsJobID(t *testing.T) {
	assert.True(t, isJobID("6f1c2a9e-3d4b-4b1f-9c1e-2a7d5e8f0b11"))
	assert.False(t, isJobID("j1"))
	assert.False(t, isJobID(""))
}
