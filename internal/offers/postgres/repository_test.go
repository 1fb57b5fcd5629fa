//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/offers"
	"github.com/bissquit/eventrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_CreateAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	offer := domain.NewOffer("o1", "l1", "Lamp", "buyer", "seller", 1000, "EUR", now.Add(time.Hour), now)
	require.NoError(t, repo.CreateOffer(ctx, offer))

	got, err := repo.GetOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusOpen, got.Status)
	assert.True(t, got.ExpiryEventsQueuedAt.Equal(domain.MarkerUnset))
	require.Len(t, got.History, 1)
	require.NotNil(t, got.History[0].Amount)
	assert.Equal(t, int64(1000), *got.History[0].Amount)

	_, err = repo.GetOffer(ctx, "missing")
	assert.ErrorIs(t, err, offers.ErrOfferNotFound)
}

func TestRepository_UpdateOffer(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateOffer(ctx, domain.NewOffer("o1", "l1", "Lamp", "buyer", "seller", 1000, "EUR", now.Add(time.Hour), now)))

	updated, err := repo.UpdateOffer(ctx, "o1", func(o *domain.Offer) error {
		return o.Counter(domain.OfferRoleSeller, 1200, "", now.Add(2*time.Hour), now)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusCountered, updated.Status)

	errRejected := errors.New("rejected")
	_, err = repo.UpdateOffer(ctx, "o1", func(o *domain.Offer) error {
		o.Status = domain.OfferStatusDeclined
		return errRejected
	})
	assert.ErrorIs(t, err, errRejected)

	got, err := repo.GetOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusCountered, got.Status, "failed update is rolled back")
	assert.Equal(t, int64(1200), got.Amount)
	assert.Len(t, got.History, 2)

	_, err = repo.UpdateOffer(ctx, "missing", func(*domain.Offer) error { return nil })
	assert.ErrorIs(t, err, offers.ErrOfferNotFound)
}

func TestRepository_UpdateOffer_Serialized(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateOffer(ctx, domain.NewOffer("o1", "l1", "Lamp", "buyer", "seller", 1000, "EUR", now.Add(-time.Minute), now.Add(-time.Hour))))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		expired int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateOffer(ctx, "o1", func(o *domain.Offer) error {
				return o.Expire(now)
			})
			if err == nil {
				mu.Lock()
				expired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, expired)
	got, err := repo.GetOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
}

func TestRepository_ExpiryPending(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	created := now.Add(-72 * time.Hour)

	overdue := domain.NewOffer("overdue", "l1", "Lamp", "b", "s", 10, "EUR", now.Add(-time.Hour), created)
	future := domain.NewOffer("future", "l1", "Lamp", "b", "s", 10, "EUR", now.Add(time.Hour), created)
	accepted := domain.NewOffer("accepted", "l1", "Lamp", "b", "s", 10, "EUR", now.Add(-2*time.Hour), created)
	require.NoError(t, accepted.Accept(domain.OfferRoleSeller, "", created))
	expired := domain.NewOffer("expired", "l1", "Lamp", "b", "s", 10, "EUR", now.Add(-3*time.Hour), created)
	require.NoError(t, expired.Expire(now))

	for _, o := range []*domain.Offer{overdue, future, accepted, expired} {
		require.NoError(t, repo.CreateOffer(ctx, o))
	}

	pending, err := repo.ListExpiryPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "expired", pending[0].ID)
	assert.Equal(t, "overdue", pending[1].ID)

	require.NoError(t, repo.MarkExpiryQueued(ctx, "expired", domain.OutcomeSummary{Emitted: 2}, now))

	pending, err = repo.ListExpiryPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "overdue", pending[0].ID)

	var emitted int
	require.NoError(t, db.QueryRow(ctx, `SELECT (expiry_summary->>'emitted')::int FROM offers WHERE id = 'expired'`).Scan(&emitted))
	assert.Equal(t, 2, emitted)
}
