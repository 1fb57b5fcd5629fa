// Package offers implements offer negotiation and the offer expiry scan.
package offers

import (
	"context"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// UpdateFunc mutates a locked offer. Returning an error aborts the update.
type UpdateFunc func(offer *domain.Offer) error

// Repository defines the interface for offer data access.
type Repository interface {
	CreateOffer(ctx context.Context, offer *domain.Offer) error
	GetOffer(ctx context.Context, id string) (*domain.Offer, error)
	// UpdateOffer locks the offer row, applies fn and persists the result in
	// the same transaction.
	UpdateOffer(ctx context.Context, id string, fn UpdateFunc) (*domain.Offer, error)

	// ListExpiryPending returns offers that are due to expire at now or are
	// already expired, whose expiry marker is unset, earliest expiry first.
	ListExpiryPending(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error)
	MarkExpiryQueued(ctx context.Context, id string, summary domain.OutcomeSummary, at time.Time) error
}
