package domain

import "time"

// EventType identifies the kind of domain state change an Event records.
type EventType string

// Event types.
const (
	EventTypeMessageReceived EventType = "Message.Received"
	EventTypeReviewPosted    EventType = "Review.Posted"
	EventTypeListingApproved EventType = "Listing.Approved"
	EventTypeAuctionWon      EventType = "Auction.Won"
	EventTypeAuctionLost     EventType = "Auction.Lost"
	EventTypeOfferCreated    EventType = "Offer.Created"
	EventTypeOfferCountered  EventType = "Offer.Countered"
	EventTypeOfferAccepted   EventType = "Offer.Accepted"
	EventTypeOfferDeclined   EventType = "Offer.Declined"
	EventTypeOfferExpired    EventType = "Offer.Expired"
)

// EventTypes lists every known event type.
var EventTypes = []EventType{
	EventTypeMessageReceived,
	EventTypeReviewPosted,
	EventTypeListingApproved,
	EventTypeAuctionWon,
	EventTypeAuctionLost,
	EventTypeOfferCreated,
	EventTypeOfferCountered,
	EventTypeOfferAccepted,
	EventTypeOfferDeclined,
	EventTypeOfferExpired,
}

// IsValid checks if the event type is one of the known types.
func (t EventType) IsValid() bool {
	_, ok := payloadFactories[t]
	return ok
}

// Entity types referenced by events.
const (
	EntityTypeMessage = "message"
	EntityTypeReview  = "review"
	EntityTypeListing = "listing"
	EntityTypeAuction = "auction"
	EntityTypeOffer   = "offer"
)

// Event is the canonical, immutable record of a domain state change.
// ID equals IdempotencyKey: the key is the document identity.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ActorID        *string   `json:"actor_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	TargetUserID   string    `json:"target_user_id"`
	Payload        Payload   `json:"payload"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsSystem reports whether the event was produced without a human actor.
func (e *Event) IsSystem() bool {
	return e.ActorID == nil
}
