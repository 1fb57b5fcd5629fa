package domain

import (
	"errors"
	"time"
)

// Offer transition errors.
var (
	ErrOfferTerminal    = errors.New("offer is in a terminal state")
	ErrOfferNotExpired  = errors.New("offer has not expired yet")
	ErrOfferInvalidRole = errors.New("invalid offer actor role")
)

// OfferStatus represents the negotiation state of an offer.
type OfferStatus string

// Offer statuses.
const (
	OfferStatusOpen      OfferStatus = "open"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDeclined  OfferStatus = "declined"
	OfferStatusExpired   OfferStatus = "expired"
)

// IsTerminal reports whether no transition may leave the status.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusAccepted || s == OfferStatusDeclined || s == OfferStatusExpired
}

// OfferRole identifies who performed an offer transition.
type OfferRole string

// Offer roles.
const (
	OfferRoleBuyer  OfferRole = "buyer"
	OfferRoleSeller OfferRole = "seller"
	OfferRoleSystem OfferRole = "system"
)

// IsParty reports whether the role is one of the negotiating parties.
func (r OfferRole) IsParty() bool {
	return r == OfferRoleBuyer || r == OfferRoleSeller
}

// OfferHistoryType is the kind of an offer history entry.
type OfferHistoryType string

// Offer history entry types.
const (
	OfferHistoryCreated   OfferHistoryType = "created"
	OfferHistoryCountered OfferHistoryType = "countered"
	OfferHistoryAccepted  OfferHistoryType = "accepted"
	OfferHistoryDeclined  OfferHistoryType = "declined"
	OfferHistoryExpired   OfferHistoryType = "expired"
)

// OfferHistoryEntry is an immutable record of one offer transition.
type OfferHistoryEntry struct {
	Type      OfferHistoryType `json:"type"`
	ActorRole OfferRole        `json:"actor_role"`
	Amount    *int64           `json:"amount,omitempty"`
	Note      string           `json:"note,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Offer is a price negotiation between a buyer and a seller on a listing.
// History is append-only.
type Offer struct {
	ID                   string              `json:"id"`
	ListingID            string              `json:"listing_id"`
	ListingTitle         string              `json:"listing_title"`
	BuyerID              string              `json:"buyer_id"`
	SellerID             string              `json:"seller_id"`
	Status               OfferStatus         `json:"status"`
	Amount               int64               `json:"amount"`
	Currency             string              `json:"currency"`
	ExpiresAt            time.Time           `json:"expires_at"`
	History              []OfferHistoryEntry `json:"history"`
	ExpiryEventsQueuedAt time.Time           `json:"-"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// NewOffer opens an offer made by the buyer.
func NewOffer(id, listingID, listingTitle, buyerID, sellerID string, amount int64, currency string, expiresAt, now time.Time) *Offer {
	o := &Offer{
		ID:                   id,
		ListingID:            listingID,
		ListingTitle:         listingTitle,
		BuyerID:              buyerID,
		SellerID:             sellerID,
		Status:               OfferStatusOpen,
		Amount:               amount,
		Currency:             currency,
		ExpiresAt:            expiresAt,
		ExpiryEventsQueuedAt: MarkerUnset,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	o.appendHistory(OfferHistoryCreated, OfferRoleBuyer, &amount, "", now)
	return o
}

// CanExpire reports whether the expiry transition applies at now.
func (o *Offer) CanExpire(now time.Time) bool {
	return !o.Status.IsTerminal() && !o.ExpiresAt.After(now)
}

// Counter replaces the amount on the table and extends the expiry.
func (o *Offer) Counter(role OfferRole, amount int64, note string, expiresAt, now time.Time) error {
	if err := o.checkTransition(role); err != nil {
		return err
	}
	o.Status = OfferStatusCountered
	o.Amount = amount
	o.ExpiresAt = expiresAt
	o.appendHistory(OfferHistoryCountered, role, &amount, note, now)
	return nil
}

// Accept closes the negotiation at the current amount.
func (o *Offer) Accept(role OfferRole, note string, now time.Time) error {
	if err := o.checkTransition(role); err != nil {
		return err
	}
	o.Status = OfferStatusAccepted
	o.appendHistory(OfferHistoryAccepted, role, nil, note, now)
	return nil
}

// Decline closes the negotiation without a deal.
func (o *Offer) Decline(role OfferRole, note string, now time.Time) error {
	if err := o.checkTransition(role); err != nil {
		return err
	}
	o.Status = OfferStatusDeclined
	o.appendHistory(OfferHistoryDeclined, role, nil, note, now)
	return nil
}

// Expire moves an open or countered offer past its deadline to expired.
func (o *Offer) Expire(now time.Time) error {
	if o.Status.IsTerminal() {
		return ErrOfferTerminal
	}
	if o.ExpiresAt.After(now) {
		return ErrOfferNotExpired
	}
	o.Status = OfferStatusExpired
	o.appendHistory(OfferHistoryExpired, OfferRoleSystem, nil, "", now)
	return nil
}

// Counterparty returns the user on the other side of role.
func (o *Offer) Counterparty(role OfferRole) string {
	if role == OfferRoleBuyer {
		return o.SellerID
	}
	return o.BuyerID
}

func (o *Offer) checkTransition(role OfferRole) error {
	if !role.IsParty() {
		return ErrOfferInvalidRole
	}
	if o.Status.IsTerminal() {
		return ErrOfferTerminal
	}
	return nil
}

func (o *Offer) appendHistory(t OfferHistoryType, role OfferRole, amount *int64, note string, now time.Time) {
	var a *int64
	if amount != nil {
		v := *amount
		a = &v
	}
	o.History = append(o.History, OfferHistoryEntry{
		Type:      t,
		ActorRole: role,
		Amount:    a,
		Note:      note,
		CreatedAt: now,
	})
	o.UpdatedAt = now
}
