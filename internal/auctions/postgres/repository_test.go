//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_OutcomeLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.Exec(ctx, `
		INSERT INTO auctions (id, listing_id, listing_title, seller_id, status, winner_id, winning_bid, currency, finalized_at)
		VALUES
			('a2', 'l2', 'Chair', 's1', 'finalized', 'u2', 900, 'EUR', $1),
			('a1', 'l1', 'Lamp', 's1', 'finalized', 'u1', 1250, 'EUR', $2),
			('a3', 'l3', 'Desk', 's1', 'open', NULL, 0, 'EUR', NULL)`,
		now.Add(-time.Minute), now.Add(-time.Hour))
	require.NoError(t, err)

	_, err = db.Exec(ctx, `
		INSERT INTO auction_bids (id, auction_id, bidder_id, amount) VALUES
			('b1', 'a1', 'u3', 100), ('b2', 'a1', 'u1', 1250), ('b3', 'a1', 'u3', 200), ('b4', 'a1', 'u0', 50)`)
	require.NoError(t, err)

	pending, err := repo.ListOutcomePending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].ID, "oldest finalization first")
	assert.False(t, pending[0].OutcomeQueued())
	require.NotNil(t, pending[0].WinnerID)
	assert.Equal(t, "u1", *pending[0].WinnerID)

	bidders, err := repo.ListBidders(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u1", "u3"}, bidders)

	require.NoError(t, repo.MarkOutcomeQueued(ctx, "a1", domain.OutcomeSummary{Emitted: 3}, now))
	require.NoError(t, repo.MarkOutcomeQueued(ctx, "a1", domain.OutcomeSummary{Emitted: 0, Duplicates: 3}, now))

	pending, err = repo.ListOutcomePending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	var duplicates int
	require.NoError(t, db.QueryRow(ctx, `SELECT (outcome_summary->>'duplicates')::int FROM auctions WHERE id = 'a1'`).Scan(&duplicates))
	assert.Equal(t, 3, duplicates)
}
