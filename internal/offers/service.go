package offers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/google/uuid"
)

// DefaultTTL is how long an offer or counter offer stays open.
const DefaultTTL = 48 * time.Hour

// Emitter is the subset of the event emitter the offer service needs.
type Emitter interface {
	Emit(ctx context.Context, input events.EmitInput) (events.EmitResult, error)
}

// CreateInput holds data for opening an offer.
type CreateInput struct {
	ListingID    string `json:"listing_id" validate:"required,max=128"`
	ListingTitle string `json:"listing_title" validate:"singleline,max=200"`
	SellerID     string `json:"seller_id" validate:"required,max=128"`
	Amount       int64  `json:"amount" validate:"gt=0"`
	Currency     string `json:"currency" validate:"required,len=3"`
	Note         string `json:"note" validate:"max=500"`
	// ExpiresAt defaults to now + DefaultTTL.
	ExpiresAt *time.Time `json:"expires_at"`
}

// CounterInput holds data for a counter offer.
type CounterInput struct {
	Amount    int64      `json:"amount" validate:"gt=0"`
	Note      string     `json:"note" validate:"max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Service runs the offer negotiation and emits an event to the counterparty
// after every committed transition.
type Service struct {
	repo    Repository
	emitter Emitter
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a new offer service with DefaultTTL.
func NewService(repo Repository, emitter Emitter) *Service {
	return NewServiceWithTTL(repo, emitter, DefaultTTL)
}

// NewServiceWithTTL creates a new offer service. ttl is how long an offer or
// counter offer stays open when the caller sets no expiry.
func NewServiceWithTTL(repo Repository, emitter Emitter, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create opens an offer from buyerID to the seller.
func (s *Service) Create(ctx context.Context, buyerID string, input CreateInput) (*domain.Offer, error) {
	if buyerID == input.SellerID {
		return nil, ErrSelfOffer
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if input.ExpiresAt != nil {
		expiresAt = input.ExpiresAt.UTC()
	}

	offer := domain.NewOffer(uuid.NewString(), input.ListingID, input.ListingTitle, buyerID, input.SellerID,
		input.Amount, input.Currency, expiresAt, now)
	if input.Note != "" {
		offer.History[0].Note = input.Note
	}

	if err := s.repo.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	s.emit(ctx, offer, domain.EventTypeOfferCreated, domain.OfferRoleBuyer, buyerID, input.Note)
	return offer, nil
}

// Get returns an offer visible to callerID. Operators see every offer.
func (s *Service) Get(ctx context.Context, callerID string, isOperator bool, id string) (*domain.Offer, error) {
	offer, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isOperator {
		if _, err := roleOf(offer, callerID); err != nil {
			return nil, err
		}
	}
	return offer, nil
}

// Counter replaces the amount on the table.
func (s *Service) Counter(ctx context.Context, callerID, id string, input CounterInput) (*domain.Offer, error) {
	var role domain.OfferRole
	offer, err := s.repo.UpdateOffer(ctx, id, func(o *domain.Offer) error {
		r, err := roleOf(o, callerID)
		if err != nil {
			return err
		}
		role = r
		now := s.now().UTC()
		expiresAt := now.Add(s.ttl)
		if input.ExpiresAt != nil {
			expiresAt = input.ExpiresAt.UTC()
		}
		return o.Counter(r, input.Amount, input.Note, expiresAt, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, offer, domain.EventTypeOfferCountered, role, callerID, input.Note)
	return offer, nil
}

// Accept closes the negotiation at the current amount.
func (s *Service) Accept(ctx context.Context, callerID, id, note string) (*domain.Offer, error) {
	var role domain.OfferRole
	offer, err := s.repo.UpdateOffer(ctx, id, func(o *domain.Offer) error {
		r, err := roleOf(o, callerID)
		if err != nil {
			return err
		}
		role = r
		return o.Accept(r, note, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, offer, domain.EventTypeOfferAccepted, role, callerID, note)
	return offer, nil
}

// Decline closes the negotiation without a deal.
func (s *Service) Decline(ctx context.Context, callerID, id, note string) (*domain.Offer, error) {
	var role domain.OfferRole
	offer, err := s.repo.UpdateOffer(ctx, id, func(o *domain.Offer) error {
		r, err := roleOf(o, callerID)
		if err != nil {
			return err
		}
		role = r
		return o.Decline(r, note, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, offer, domain.EventTypeOfferDeclined, role, callerID, note)
	return offer, nil
}

// emit notifies the counterparty of role. The transition is already
// committed, so failures are only logged.
func (s *Service) emit(ctx context.Context, offer *domain.Offer, t domain.EventType, role domain.OfferRole, actorID, note string) {
	if s.emitter == nil {
		return
	}
	actor := actorID
	input := events.EmitInput{
		Type:           t,
		ActorID:        &actor,
		EntityType:     domain.EntityTypeOffer,
		EntityID:       offer.ID,
		TargetUserID:   offer.Counterparty(role),
		Payload:        offerPayload(offer, role, note),
		IdempotencyKey: fmt.Sprintf("offer:%s:%s:%d:v1", offer.ID, t, len(offer.History)),
	}

	if _, err := s.emitter.Emit(ctx, input); err != nil {
		slog.Error("failed to emit offer event",
			"offer_id", offer.ID,
			"type", t,
			"error", err,
		)
	}
}

func offerPayload(offer *domain.Offer, role domain.OfferRole, note string) *domain.OfferPayload {
	return &domain.OfferPayload{
		OfferID:      offer.ID,
		ListingID:    offer.ListingID,
		ListingTitle: offer.ListingTitle,
		Amount:       offer.Amount,
		Currency:     offer.Currency,
		ActorRole:    role,
		Note:         note,
	}
}

func roleOf(offer *domain.Offer, userID string) (domain.OfferRole, error) {
	switch userID {
	case offer.BuyerID:
		return domain.OfferRoleBuyer, nil
	case offer.SellerID:
		return domain.OfferRoleSeller, nil
	}
	return "", ErrNotParticipant
}
