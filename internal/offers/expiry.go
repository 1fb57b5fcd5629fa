package offers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/bissquit/eventrelay/internal/scanner"
)

// ExpirySource feeds overdue offers to an outcome scanner. Prepare performs
// the expiry transition; Plan notifies both parties.
type ExpirySource struct {
	repo Repository
}

// NewExpirySource creates an offer expiry source.
func NewExpirySource(repo Repository) *ExpirySource {
	return &ExpirySource{repo: repo}
}

// FetchUnprocessed implements scanner.Source.
func (s *ExpirySource) FetchUnprocessed(ctx context.Context, now time.Time, limit int) ([]*domain.Offer, error) {
	offers, err := s.repo.ListExpiryPending(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Offer, 0, len(offers))
	for i := range offers {
		out = append(out, &offers[i])
	}
	return out, nil
}

// RowID implements scanner.Source.
func (s *ExpirySource) RowID(row *domain.Offer) string {
	return row.ID
}

// Prepare expires the offer under a row lock. An offer already expired by an
// earlier run is passed through unchanged; one that was accepted, declined or
// extended since it was fetched is skipped.
func (s *ExpirySource) Prepare(ctx context.Context, row *domain.Offer, now time.Time) (*domain.Offer, bool, error) {
	offer, err := s.repo.UpdateOffer(ctx, row.ID, func(o *domain.Offer) error {
		if o.Status == domain.OfferStatusExpired {
			return nil
		}
		return o.Expire(now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrOfferTerminal) || errors.Is(err, domain.ErrOfferNotExpired) {
			slog.Debug("offer no longer expirable", "offer_id", row.ID, "reason", err)
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("expire offer: %w", err)
	}
	return offer, false, nil
}

// Plan emits Offer.Expired to the buyer and the seller.
func (s *ExpirySource) Plan(offer *domain.Offer) scanner.Plan {
	var plan scanner.Plan
	for _, party := range []struct {
		role   domain.OfferRole
		userID string
	}{
		{domain.OfferRoleBuyer, offer.BuyerID},
		{domain.OfferRoleSeller, offer.SellerID},
	} {
		plan.Inputs = append(plan.Inputs, events.EmitInput{
			Type:           domain.EventTypeOfferExpired,
			EntityType:     domain.EntityTypeOffer,
			EntityID:       offer.ID,
			TargetUserID:   party.userID,
			Payload:        offerPayload(offer, domain.OfferRoleSystem, ""),
			IdempotencyKey: fmt.Sprintf("offer:%s:expired:%s:v1", offer.ID, party.role),
		})
	}
	return plan
}

// MarkProcessed implements scanner.Source.
func (s *ExpirySource) MarkProcessed(ctx context.Context, offer *domain.Offer, summary domain.OutcomeSummary, at time.Time) error {
	return s.repo.MarkExpiryQueued(ctx, offer.ID, summary, at)
}
