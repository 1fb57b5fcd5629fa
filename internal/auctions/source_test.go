package auctions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	"github.com/bissquit/eventrelay/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mu       sync.Mutex
	auctions []*domain.Auction
	bids     map[string][]string
	summary  map[string]domain.OutcomeSummary
}

func newMockRepository() *mockRepository {
	return &mockRepository{bids: map[string][]string{}, summary: map[string]domain.OutcomeSummary{}}
}

func (m *mockRepository) ListOutcomePending(_ context.Context, limit int) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status == domain.AuctionStatusFinalized && !a.OutcomeQueued() {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepository) ListBidders(_ context.Context, auctionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bids[auctionID], nil
}

func (m *mockRepository) MarkOutcomeQueued(_ context.Context, auctionID string, summary domain.OutcomeSummary, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.auctions {
		if a.ID == auctionID {
			a.OutcomeEventsQueuedAt = at
			m.summary[auctionID] = summary
		}
	}
	return nil
}

type mockEmitter struct {
	mu     sync.Mutex
	inputs []events.EmitInput
	keys   map[string]bool
}

func (m *mockEmitter) Emit(_ context.Context, input events.EmitInput) (events.EmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[input.IdempotencyKey] {
		return events.EmitResult{OK: true, EventID: input.IdempotencyKey}, nil
	}
	m.keys[input.IdempotencyKey] = true
	m.inputs = append(m.inputs, input)
	return events.EmitResult{OK: true, Created: true, EventID: input.IdempotencyKey}, nil
}

func finalizedAuction(id, winner string) *domain.Auction {
	finalized := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Auction{
		ID:                    id,
		ListingID:             "l-" + id,
		ListingTitle:          "Vintage lamp",
		SellerID:              "seller",
		Status:                domain.AuctionStatusFinalized,
		WinnerID:              &winner,
		WinningBid:            1250,
		Currency:              "EUR",
		FinalizedAt:           &finalized,
		OutcomeEventsQueuedAt: domain.MarkerUnset,
	}
}

func bidders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("bidder-%02d", i)
	}
	return out
}

func countByType(inputs []events.EmitInput) map[domain.EventType]int {
	counts := map[domain.EventType]int{}
	for _, in := range inputs {
		counts[in.Type]++
	}
	return counts
}

func TestSource_Plan(t *testing.T) {
	source := NewSource(newMockRepository(), 10)
	row := &Outcome{
		Auction: *finalizedAuction("a1", "bidder-01"),
		Bidders: []string{"bidder-00", "bidder-01", "bidder-02", "bidder-02"},
	}

	plan := source.Plan(row)
	require.Len(t, plan.Inputs, 3)
	assert.Equal(t, 0, plan.Truncated)

	won := plan.Inputs[0]
	assert.Equal(t, domain.EventTypeAuctionWon, won.Type)
	assert.Equal(t, "bidder-01", won.TargetUserID)
	assert.Equal(t, "auction:a1:won:v1", won.IdempotencyKey)
	assert.Nil(t, won.ActorID)
	assert.Equal(t, domain.EntityTypeAuction, won.EntityType)

	assert.Equal(t, "auction:a1:lost:bidder-00:v1", plan.Inputs[1].IdempotencyKey)
	assert.Equal(t, "auction:a1:lost:bidder-02:v1", plan.Inputs[2].IdempotencyKey)
	for _, in := range plan.Inputs {
		require.NoError(t, domain.CheckPayload(in.Type, in.Payload))
	}
}

func TestSource_Plan_NoWinner(t *testing.T) {
	source := NewSource(newMockRepository(), 10)
	a := finalizedAuction("a1", "")
	a.WinnerID = nil

	plan := source.Plan(&Outcome{Auction: *a, Bidders: []string{"u1"}})
	require.Len(t, plan.Inputs, 1)
	assert.Equal(t, domain.EventTypeAuctionLost, plan.Inputs[0].Type)
}

func TestSource_Plan_CapsLosers(t *testing.T) {
	source := NewSource(newMockRepository(), 3)

	plan := source.Plan(&Outcome{Auction: *finalizedAuction("a1", "winner"), Bidders: append(bidders(5), "winner")})
	assert.Len(t, plan.Inputs, 4)
	assert.Equal(t, 2, plan.Truncated)
	assert.Equal(t, "bidder-02", plan.Inputs[3].TargetUserID, "losers are taken in bidder order")
}

func TestNewSource_DefaultCap(t *testing.T) {
	assert.Equal(t, DefaultMaxLosersEmit, NewSource(newMockRepository(), 0).maxLosersEmit)
}

func TestOutcomeScan_FanOutOnce(t *testing.T) {
	tests := []struct {
		name      string
		losers    int
		cap       int
		wantLost  int
		truncated int
	}{
		{"below cap", 3, 5, 3, 0},
		{"at cap", 5, 5, 5, 0},
		{"above cap", 8, 5, 5, 3},
		{"no losers", 0, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.auctions = []*domain.Auction{finalizedAuction("a1", "winner")}
			repo.bids["a1"] = append(bidders(tt.losers), "winner")

			emitter := &mockEmitter{}
			s := scanner.New[*Outcome]("auction_outcomes", scanner.DefaultConfig(), NewSource(repo, tt.cap), emitter)

			stats, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Processed)

			counts := countByType(emitter.inputs)
			assert.Equal(t, 1, counts[domain.EventTypeAuctionWon])
			assert.Equal(t, tt.wantLost, counts[domain.EventTypeAuctionLost])
			assert.Equal(t, 1+tt.wantLost, repo.summary["a1"].Emitted)
			assert.Equal(t, tt.truncated, repo.summary["a1"].Truncated)

			stats, err = s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Fetched)
			assert.Len(t, emitter.inputs, 1+tt.wantLost, "a second run emits nothing")
		})
	}
}

func TestOutcomeScan_IgnoresOpenAuctions(t *testing.T) {
	repo := newMockRepository()
	open := finalizedAuction("a1", "winner")
	open.Status = domain.AuctionStatusOpen
	repo.auctions = []*domain.Auction{open}

	emitter := &mockEmitter{}
	s := scanner.New[*Outcome]("auction_outcomes", scanner.DefaultConfig(), NewSource(repo, 5), emitter)

	stats, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Fetched)
	assert.Empty(t, emitter.inputs)
}
