// Package postgres provides PostgreSQL implementation of the offers repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/offers"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const offerColumns = `id, listing_id, listing_title, buyer_id, seller_id, status, amount, currency,
	expires_at, history, expiry_events_queued_at, created_at, updated_at`

// Repository implements offers.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateOffer inserts a new offer.
func (r *Repository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	history, err := json.Marshal(offer.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	query := `INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = r.db.Exec(ctx, query,
		offer.ID,
		offer.ListingID,
		offer.ListingTitle,
		offer.BuyerID,
		offer.SellerID,
		offer.Status,
		offer.Amount,
		offer.Currency,
		offer.ExpiresAt,
		history,
		offer.ExpiryEventsQueuedAt,
		offer.CreatedAt,
		offer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// GetOffer retrieves an offer by ID.
func (r *Repository) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	offer, err := scanOffer(r.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offers.ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

// UpdateOffer locks the offer row, applies fn and writes the result back.
func (r *Repository) UpdateOffer(ctx context.Context, id string, fn offers.UpdateFunc) (*domain.Offer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	offer, err := scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offers.ErrOfferNotFound
		}
		return nil, fmt.Errorf("lock offer: %w", err)
	}

	if err := fn(offer); err != nil {
		return nil, err
	}

	history, err := json.Marshal(offer.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	query := `
		UPDATE offers
		SET status = $2, amount = $3, expires_at = $4, history = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, offer.ID, offer.Status, offer.Amount, offer.ExpiresAt, history, offer.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return offer, nil
}

// ListExpiryPending returns offers whose expiry events are not queued yet.
func (r *Repository) ListExpiryPending(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE expiry_events_queued_at = $1
			AND ((status IN ('open', 'countered') AND expires_at <= $2) OR status = 'expired')
		ORDER BY expires_at ASC, id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, domain.MarkerUnset, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring offers: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		list = append(list, *offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return list, nil
}

// MarkExpiryQueued sets the expiry marker and merges summary into expiry_summary.
func (r *Repository) MarkExpiryQueued(ctx context.Context, id string, summary domain.OutcomeSummary, at time.Time) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
		UPDATE offers
		SET expiry_events_queued_at = $2, expiry_summary = expiry_summary || $3::jsonb
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, at, raw); err != nil {
		return fmt.Errorf("mark offer expiry queued: %w", err)
	}
	return nil
}

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var (
		offer   domain.Offer
		history []byte
	)
	err := row.Scan(
		&offer.ID,
		&offer.ListingID,
		&offer.ListingTitle,
		&offer.BuyerID,
		&offer.SellerID,
		&offer.Status,
		&offer.Amount,
		&offer.Currency,
		&offer.ExpiresAt,
		&history,
		&offer.ExpiryEventsQueuedAt,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(history, &offer.History); err != nil {
		return nil, fmt.Errorf("decode offer history %s: %w", offer.ID, err)
	}
	return &offer, nil
}
