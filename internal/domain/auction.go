package domain

import "time"

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

// Auction statuses.
const (
	AuctionStatusOpen      AuctionStatus = "open"
	AuctionStatusFinalized AuctionStatus = "finalized"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// MarkerUnset is the value an outcome marker holds until the row's events are
// queued. Rows are created with it so "not processed yet" is an explicit
// equality match rather than a missing field.
var MarkerUnset = time.Unix(0, 0).UTC()

// OutcomeSummary records what a scanner emitted for a source row.
type OutcomeSummary struct {
	Emitted    int `json:"emitted"`
	Duplicates int `json:"duplicates"`
	Truncated  int `json:"truncated,omitempty"`
}

// Auction is the subset of an auction the outcome scanner reads.
type Auction struct {
	ID                    string        `json:"id"`
	ListingID             string        `json:"listing_id"`
	ListingTitle          string        `json:"listing_title"`
	SellerID              string        `json:"seller_id"`
	Status                AuctionStatus `json:"status"`
	WinnerID              *string       `json:"winner_id"`
	WinningBid            int64         `json:"winning_bid"`
	Currency              string        `json:"currency"`
	FinalizedAt           *time.Time    `json:"finalized_at"`
	OutcomeEventsQueuedAt time.Time     `json:"outcome_events_queued_at"`
	CreatedAt             time.Time     `json:"created_at"`
}

// OutcomeQueued reports whether the auction's outcome events were already emitted.
func (a *Auction) OutcomeQueued() bool {
	return !a.OutcomeEventsQueuedAt.Equal(MarkerUnset)
}
