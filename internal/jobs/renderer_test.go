package jobs

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auctionWonEvent() *domain.Event {
	return &domain.Event{
		ID:           "auction:a1:won:v1",
		Type:         domain.EventTypeAuctionWon,
		EntityType:   domain.EntityTypeAuction,
		EntityID:     "a1",
		TargetUserID: "u1",
		Payload: &domain.AuctionOutcomePayload{
			AuctionID:    "a1",
			ListingTitle: "Vintage lamp",
			WinningBid:   1250,
			Currency:     "EUR",
		},
	}
}

func samplePayload(t domain.EventType) domain.Payload {
	switch t {
	case domain.EventTypeMessageReceived:
		return &domain.MessageReceivedPayload{ThreadID: "t1", MessageID: "m1", SenderName: "Ann", Preview: "Is it available?"}
	case domain.EventTypeReviewPosted:
		return &domain.ReviewPostedPayload{ReviewID: "r1", ListingID: "l1", ListingTitle: "Lamp", ReviewerName: "Bob", Rating: 4}
	case domain.EventTypeListingApproved:
		return &domain.ListingApprovedPayload{ListingID: "l1", ListingTitle: "Lamp"}
	case domain.EventTypeAuctionWon, domain.EventTypeAuctionLost:
		return &domain.AuctionOutcomePayload{AuctionID: "a1", ListingTitle: "Lamp", WinningBid: 500, Currency: "USD"}
	default:
		return &domain.OfferPayload{OfferID: "o1", ListingID: "l1", ListingTitle: "Lamp", Amount: 900, Currency: "USD", ActorRole: domain.OfferRoleSeller}
	}
}

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer("https://market.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://market.example.com", r.baseURL)
	assert.Len(t, r.templates, 2)
}

func TestRenderer_RendersEveryEventType(t *testing.T) {
	r, err := NewRenderer("https://market.example.com")
	require.NoError(t, err)

	for _, et := range domain.EventTypes {
		t.Run(string(et), func(t *testing.T) {
			event := &domain.Event{ID: "e1", Type: et, TargetUserID: "u1", Payload: samplePayload(et)}

			email, err := r.Render(domain.JobKindEmail, event)
			require.NoError(t, err)
			assert.Equal(t, event.Summary().Title, email.Subject)
			assert.NotEmpty(t, email.Body)
			assert.Contains(t, email.Body, "https://market.example.com/")
			assert.NotContains(t, email.Body, "<no value>")

			sms, err := r.Render(domain.JobKindSMS, event)
			require.NoError(t, err)
			assert.Empty(t, sms.Subject)
			assert.NotEmpty(t, sms.Body)
			assert.NotContains(t, sms.Body, "\n")
		})
	}
}

func TestRenderer_AuctionWon(t *testing.T) {
	r, err := NewRenderer("https://market.example.com")
	require.NoError(t, err)

	email, err := r.Render(domain.JobKindEmail, auctionWonEvent())
	require.NoError(t, err)
	assert.Equal(t, "You won Vintage lamp", email.Subject)
	assert.Contains(t, email.Body, "12.50 EUR")
	assert.Contains(t, email.Body, "https://market.example.com/auctions/a1")

	sms, err := r.Render(domain.JobKindSMS, auctionWonEvent())
	require.NoError(t, err)
	assert.Equal(t, "You won Vintage lamp for 12.50 EUR. https://market.example.com/auctions/a1", sms.Body)
}

func TestRenderer_SubjectIsSingleLine(t *testing.T) {
	r, err := NewRenderer("https://market.example.com")
	require.NoError(t, err)

	event := auctionWonEvent()
	event.Payload.(*domain.AuctionOutcomePayload).ListingTitle = "Lamp\r\nBcc: evil@attacker.test"

	email, err := r.Render(domain.JobKindEmail, event)
	require.NoError(t, err)
	assert.Equal(t, "You won Lamp Bcc: evil@attacker.test", email.Subject)
	assert.NotContains(t, email.Subject, "\r")
	assert.NotContains(t, email.Subject, "\n")
}

func TestRenderer_SMSTruncated(t *testing.T) {
	r, err := NewRenderer("https://market.example.com")
	require.NoError(t, err)

	event := &domain.Event{
		ID:   "e1",
		Type: domain.EventTypeMessageReceived,
		Payload: &domain.MessageReceivedPayload{
			ThreadID:   "t1",
			MessageID:  "m1",
			SenderName: "Ann",
			Preview:    strings.Repeat("ü", 280),
		},
	}

	sms, err := r.Render(domain.JobKindSMS, event)
	require.NoError(t, err)
	assert.Equal(t, smsMaxLength, utf8.RuneCountInString(sms.Body))
	assert.True(t, strings.HasSuffix(sms.Body, "..."))
}

func TestRenderer_UnknownKind(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	_, err = r.Render(domain.JobKind("pigeon"), auctionWonEvent())
	require.Error(t, err)
}

func TestTemplateFuncs(t *testing.T) {
	assert.Equal(t, "Seller", titleCase("seller"))
	assert.Equal(t, "***", stars(3))
	assert.Equal(t, "", stars(-1))
	assert.Equal(t, "a b c", oneLine("  a\n b\t\tc "))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}
