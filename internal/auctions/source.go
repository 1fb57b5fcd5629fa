// Package auctions emits the outcome events of finalized auctions.
package auctions

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/bissquit/eventrelay/internal/scanner"
)

// DefaultMaxLosersEmit bounds the Auction.Lost fan-out of one auction.
const DefaultMaxLosersEmit = 200

// Repository defines the interface for auction data access.
type Repository interface {
	// ListOutcomePending returns finalized auctions whose outcome marker is
	// unset, oldest finalization first.
	ListOutcomePending(ctx context.Context, limit int) ([]domain.Auction, error)
	// ListBidders returns the distinct bidders of an auction ordered by ID.
	ListBidders(ctx context.Context, auctionID string) ([]string, error)
	MarkOutcomeQueued(ctx context.Context, auctionID string, summary domain.OutcomeSummary, at time.Time) error
}

// Outcome is a finalized auction together with its participants.
type Outcome struct {
	Auction domain.Auction
	Bidders []string
}

// Source feeds finalized auctions to an outcome scanner.
type Source struct {
	repo          Repository
	maxLosersEmit int
}

// NewSource creates an auction outcome source. maxLosersEmit <= 0 uses
// DefaultMaxLosersEmit.
func NewSource(repo Repository, maxLosersEmit int) *Source {
	if maxLosersEmit <= 0 {
		maxLosersEmit = DefaultMaxLosersEmit
	}
	return &Source{repo: repo, maxLosersEmit: maxLosersEmit}
}

// FetchUnprocessed implements scanner.Source.
func (s *Source) FetchUnprocessed(ctx context.Context, _ time.Time, limit int) ([]*Outcome, error) {
	auctions, err := s.repo.ListOutcomePending(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Outcome, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, &Outcome{Auction: a})
	}
	return out, nil
}

// RowID implements scanner.Source.
func (s *Source) RowID(row *Outcome) string {
	return row.Auction.ID
}

// Prepare loads the participant set.
func (s *Source) Prepare(ctx context.Context, row *Outcome, _ time.Time) (*Outcome, bool, error) {
	bidders, err := s.repo.ListBidders(ctx, row.Auction.ID)
	if err != nil {
		return nil, false, fmt.Errorf("list bidders: %w", err)
	}
	return &Outcome{Auction: row.Auction, Bidders: bidders}, false, nil
}

// Plan emits Auction.Won to the winner and Auction.Lost to up to
// maxLosersEmit other bidders.
func (s *Source) Plan(row *Outcome) scanner.Plan {
	a := row.Auction
	var plan scanner.Plan

	payload := &domain.AuctionOutcomePayload{
		AuctionID:    a.ID,
		ListingTitle: a.ListingTitle,
		WinningBid:   a.WinningBid,
		Currency:     a.Currency,
	}

	winner := ""
	if a.WinnerID != nil && *a.WinnerID != "" {
		winner = *a.WinnerID
		plan.Inputs = append(plan.Inputs, outcomeInput(domain.EventTypeAuctionWon, a.ID, winner,
			fmt.Sprintf("auction:%s:won:v1", a.ID), payload))
	}

	losers := make([]string, 0, len(row.Bidders))
	seen := make(map[string]bool, len(row.Bidders))
	for _, bidder := range row.Bidders {
		if bidder == winner || seen[bidder] {
			continue
		}
		seen[bidder] = true
		losers = append(losers, bidder)
	}

	if len(losers) > s.maxLosersEmit {
		plan.Truncated = len(losers) - s.maxLosersEmit
		losers = losers[:s.maxLosersEmit]
	}

	for _, loser := range losers {
		plan.Inputs = append(plan.Inputs, outcomeInput(domain.EventTypeAuctionLost, a.ID, loser,
			fmt.Sprintf("auction:%s:lost:%s:v1", a.ID, loser), payload))
	}
	return plan
}

// MarkProcessed implements scanner.Source.
func (s *Source) MarkProcessed(ctx context.Context, row *Outcome, summary domain.OutcomeSummary, at time.Time) error {
	return s.repo.MarkOutcomeQueued(ctx, row.Auction.ID, summary, at)
}

func outcomeInput(t domain.EventType, auctionID, target, key string, payload *domain.AuctionOutcomePayload) events.EmitInput {
	p := *payload
	return events.EmitInput{
		Type:           t,
		EntityType:     domain.EntityTypeAuction,
		EntityID:       auctionID,
		TargetUserID:   target,
		Payload:        &p,
		IdempotencyKey: key,
	}
}
