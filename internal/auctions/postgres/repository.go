// Package postgres provides PostgreSQL implementation of the auctions repository.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements auctions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListOutcomePending returns finalized auctions whose outcome events were not queued yet.
func (r *Repository) ListOutcomePending(ctx context.Context, limit int) ([]domain.Auction, error) {
	query := `
		SELECT id, listing_id, listing_title, seller_id, status, winner_id, winning_bid, currency,
			finalized_at, outcome_events_queued_at, created_at
		FROM auctions
		WHERE status = 'finalized' AND outcome_events_queued_at = $1
		ORDER BY finalized_at ASC, id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, domain.MarkerUnset, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending auctions: %w", err)
	}
	defer rows.Close()

	auctions := make([]domain.Auction, 0)
	for rows.Next() {
		var a domain.Auction
		if err := rows.Scan(
			&a.ID,
			&a.ListingID,
			&a.ListingTitle,
			&a.SellerID,
			&a.Status,
			&a.WinnerID,
			&a.WinningBid,
			&a.Currency,
			&a.FinalizedAt,
			&a.OutcomeEventsQueuedAt,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auctions: %w", err)
	}
	return auctions, nil
}

// ListBidders returns the distinct bidders of an auction ordered by ID.
func (r *Repository) ListBidders(ctx context.Context, auctionID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT bidder_id FROM auction_bids WHERE auction_id = $1 ORDER BY bidder_id`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bidders: %w", err)
	}
	defer rows.Close()

	bidders := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bidder: %w", err)
		}
		bidders = append(bidders, id)
	}
	return bidders, rows.Err()
}

// MarkOutcomeQueued sets the outcome marker and merges summary into outcome_summary.
func (r *Repository) MarkOutcomeQueued(ctx context.Context, auctionID string, summary domain.OutcomeSummary, at time.Time) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
		UPDATE auctions
		SET outcome_events_queued_at = $2, outcome_summary = outcome_summary || $3::jsonb
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, auctionID, at, raw); err != nil {
		return fmt.Errorf("mark auction outcome queued: %w", err)
	}
	return nil
}
