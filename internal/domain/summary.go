package domain

import (
	"fmt"
	"strings"
)

// EventSummary is the short human-readable form of an event, shared by the
// inbox and as the subject of channel messages.
type EventSummary struct {
	Title string
	Body  string
	Link  string
}

// Summary describes the event from the target user's point of view.
func (e *Event) Summary() EventSummary {
	switch p := e.Payload.(type) {
	case *MessageReceivedPayload:
		return EventSummary{
			Title: "New message from " + p.SenderName,
			Body:  p.Preview,
			Link:  "/messages/" + p.ThreadID,
		}
	case *ReviewPostedPayload:
		return EventSummary{
			Title: fmt.Sprintf("New %d-star review on %s", p.Rating, p.ListingTitle),
			Body:  p.ReviewerName + " reviewed your listing.",
			Link:  "/listings/" + p.ListingID + "#reviews",
		}
	case *ListingApprovedPayload:
		return EventSummary{
			Title: "Your listing is live",
			Body:  p.ListingTitle + " was approved and is now visible to buyers.",
			Link:  "/listings/" + p.ListingID,
		}
	case *AuctionOutcomePayload:
		amount := FormatAmount(p.WinningBid, p.Currency)
		if e.Type == EventTypeAuctionWon {
			return EventSummary{
				Title: "You won " + p.ListingTitle,
				Body:  "Your bid of " + amount + " won the auction.",
				Link:  "/auctions/" + p.AuctionID,
			}
		}
		return EventSummary{
			Title: "Auction ended: " + p.ListingTitle,
			Body:  "Another bidder won with " + amount + ".",
			Link:  "/auctions/" + p.AuctionID,
		}
	case *OfferPayload:
		return offerSummary(e.Type, p)
	}
	return EventSummary{Title: string(e.Type)}
}

func offerSummary(t EventType, p *OfferPayload) EventSummary {
	amount := FormatAmount(p.Amount, p.Currency)
	s := EventSummary{Link: "/offers/" + p.OfferID}

	switch t {
	case EventTypeOfferCreated:
		s.Title = "New offer on " + p.ListingTitle
		s.Body = "You received an offer of " + amount + "."
	case EventTypeOfferCountered:
		s.Title = "Counter offer on " + p.ListingTitle
		s.Body = "The " + string(p.ActorRole) + " countered with " + amount + "."
	case EventTypeOfferAccepted:
		s.Title = "Offer accepted: " + p.ListingTitle
		s.Body = "The " + string(p.ActorRole) + " accepted " + amount + "."
	case EventTypeOfferDeclined:
		s.Title = "Offer declined: " + p.ListingTitle
		s.Body = "The " + string(p.ActorRole) + " declined the offer of " + amount + "."
	case EventTypeOfferExpired:
		s.Title = "Offer expired: " + p.ListingTitle
		s.Body = "The offer of " + amount + " expired without an answer."
	}

	if p.Note != "" {
		s.Body += " Note: " + p.Note
	}
	return s
}

// FormatAmount renders an amount in minor units, e.g. 1250 EUR as "12.50 EUR".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency))
}
