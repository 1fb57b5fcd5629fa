package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload errors.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrPayloadMismatch  = errors.New("payload does not match event type")
)

// Payload is the per-type body of an Event. Every event type has exactly one
// payload schema; DecodePayload picks it by type.
type Payload interface {
	// BusinessKey returns the stable identifier the payload is about, used to
	// derive idempotency keys when the caller does not provide one.
	BusinessKey() string
	supports(t EventType) bool
}

// MessageReceivedPayload describes a chat message delivered to the target user.
type MessageReceivedPayload struct {
	ThreadID   string `json:"thread_id" validate:"required"`
	MessageID  string `json:"message_id" validate:"required"`
	SenderName string `json:"sender_name" validate:"required,singleline,max=120"`
	Preview    string `json:"preview" validate:"max=280"`
}

// BusinessKey implements Payload.
func (p *MessageReceivedPayload) BusinessKey() string { return p.MessageID }

func (p *MessageReceivedPayload) supports(t EventType) bool {
	return t == EventTypeMessageReceived
}

// ReviewPostedPayload describes a review left on one of the target user's listings.
type ReviewPostedPayload struct {
	ReviewID     string `json:"review_id" validate:"required"`
	ListingID    string `json:"listing_id" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required,singleline,max=200"`
	ReviewerName string `json:"reviewer_name" validate:"required,singleline,max=120"`
	Rating       int    `json:"rating" validate:"min=1,max=5"`
}

// BusinessKey implements Payload.
func (p *ReviewPostedPayload) BusinessKey() string { return p.ReviewID }

func (p *ReviewPostedPayload) supports(t EventType) bool {
	return t == EventTypeReviewPosted
}

// ListingApprovedPayload describes a listing that passed moderation.
type ListingApprovedPayload struct {
	ListingID    string `json:"listing_id" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required,singleline,max=200"`
}

// BusinessKey implements Payload.
func (p *ListingApprovedPayload) BusinessKey() string { return p.ListingID }

func (p *ListingApprovedPayload) supports(t EventType) bool {
	return t == EventTypeListingApproved
}

// AuctionOutcomePayload is shared by Auction.Won and Auction.Lost.
type AuctionOutcomePayload struct {
	AuctionID    string `json:"auction_id" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required,singleline,max=200"`
	WinningBid   int64  `json:"winning_bid" validate:"min=0"`
	Currency     string `json:"currency" validate:"required,len=3"`
}

// BusinessKey implements Payload.
func (p *AuctionOutcomePayload) BusinessKey() string { return p.AuctionID }

func (p *AuctionOutcomePayload) supports(t EventType) bool {
	return t == EventTypeAuctionWon || t == EventTypeAuctionLost
}

// OfferPayload is shared by all Offer.* events.
type OfferPayload struct {
	OfferID      string    `json:"offer_id" validate:"required"`
	ListingID    string    `json:"listing_id" validate:"required"`
	ListingTitle string    `json:"listing_title" validate:"singleline,max=200"`
	Amount       int64     `json:"amount" validate:"min=0"`
	Currency     string    `json:"currency" validate:"required,len=3"`
	ActorRole    OfferRole `json:"actor_role" validate:"required,oneof=buyer seller system"`
	Note         string    `json:"note,omitempty" validate:"max=500"`
}

// BusinessKey implements Payload. Offers change state several times, so the
// actor role is part of the key.
func (p *OfferPayload) BusinessKey() string {
	return p.OfferID + ":" + string(p.ActorRole)
}

func (p *OfferPayload) supports(t EventType) bool {
	switch t {
	case EventTypeOfferCreated, EventTypeOfferCountered, EventTypeOfferAccepted,
		EventTypeOfferDeclined, EventTypeOfferExpired:
		return true
	}
	return false
}

var payloadFactories = map[EventType]func() Payload{
	EventTypeMessageReceived: func() Payload { return &MessageReceivedPayload{} },
	EventTypeReviewPosted:    func() Payload { return &ReviewPostedPayload{} },
	EventTypeListingApproved: func() Payload { return &ListingApprovedPayload{} },
	EventTypeAuctionWon:      func() Payload { return &AuctionOutcomePayload{} },
	EventTypeAuctionLost:     func() Payload { return &AuctionOutcomePayload{} },
	EventTypeOfferCreated:    func() Payload { return &OfferPayload{} },
	EventTypeOfferCountered:  func() Payload { return &OfferPayload{} },
	EventTypeOfferAccepted:   func() Payload { return &OfferPayload{} },
	EventTypeOfferDeclined:   func() Payload { return &OfferPayload{} },
	EventTypeOfferExpired:    func() Payload { return &OfferPayload{} },
}

// CheckPayload verifies that the payload belongs to the event type.
func CheckPayload(t EventType, p Payload) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}
	if p == nil || !p.supports(t) {
		return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, t, p)
	}
	return nil
}

// DecodePayload decodes a raw JSON payload into the schema registered for t.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	factory, ok := payloadFactories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}
	p := factory()
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
