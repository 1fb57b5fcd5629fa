package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.50 EUR", FormatAmount(1250, "EUR"))
	assert.Equal(t, "0.05 USD", FormatAmount(5, "USD"))
	assert.Equal(t, "-3.00 USD", FormatAmount(-300, "USD"))
	assert.Equal(t, "1.00", FormatAmount(100, ""))
}

func TestEvent_Summary(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		wantTitle string
		wantLink  string
	}{
		{
			name: "message",
			event: Event{Type: EventTypeMessageReceived, Payload: &MessageReceivedPayload{
				ThreadID: "t1", MessageID: "m1", SenderName: "Ann", Preview: "hi",
			}},
			wantTitle: "New message from Ann",
			wantLink:  "/messages/t1",
		},
		{
			name: "auction won",
			event: Event{Type: EventTypeAuctionWon, Payload: &AuctionOutcomePayload{
				AuctionID: "a1", ListingTitle: "Bike", WinningBid: 1200, Currency: "EUR",
			}},
			wantTitle: "You won Bike",
			wantLink:  "/auctions/a1",
		},
		{
			name: "auction lost",
			event: Event{Type: EventTypeAuctionLost, Payload: &AuctionOutcomePayload{
				AuctionID: "a1", ListingTitle: "Bike", WinningBid: 1200, Currency: "EUR",
			}},
			wantTitle: "Auction ended: Bike",
			wantLink:  "/auctions/a1",
		},
		{
			name: "offer expired",
			event: Event{Type: EventTypeOfferExpired, Payload: &OfferPayload{
				OfferID: "o1", ListingTitle: "Lamp", Amount: 500, Currency: "USD", ActorRole: OfferRoleSystem,
			}},
			wantTitle: "Offer expired: Lamp",
			wantLink:  "/offers/o1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.event.Summary()
			assert.Equal(t, tt.wantTitle, s.Title)
			assert.Equal(t, tt.wantLink, s.Link)
			assert.NotEmpty(t, s.Body)
		})
	}
}

func TestEvent_Summary_OfferNote(t *testing.T) {
	e := Event{Type: EventTypeOfferDeclined, Payload: &OfferPayload{
		OfferID: "o1", ListingTitle: "Lamp", Amount: 500, Currency: "USD", ActorRole: OfferRoleSeller, Note: "too low",
	}}

	assert.Equal(t, "The seller declined the offer of 5.00 USD. Note: too low", e.Summary().Body)
}
