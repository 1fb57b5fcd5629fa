package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOffer(now time.Time) *Offer {
	return NewOffer("offer-1", "listing-1", "Vintage lamp", "buyer-1", "seller-1", 5000, "USD", now.Add(48*time.Hour), now)
}

func TestNewOffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := newTestOffer(now)

	assert.Equal(t, OfferStatusOpen, o.Status)
	assert.Equal(t, MarkerUnset, o.ExpiryEventsQueuedAt)
	require.Len(t, o.History, 1)
	assert.Equal(t, OfferHistoryCreated, o.History[0].Type)
	assert.Equal(t, OfferRoleBuyer, o.History[0].ActorRole)
	require.NotNil(t, o.History[0].Amount)
	assert.Equal(t, int64(5000), *o.History[0].Amount)
}

func TestOffer_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("counter then accept", func(t *testing.T) {
		o := newTestOffer(now)

		require.NoError(t, o.Counter(OfferRoleSeller, 6000, "meet me halfway", now.Add(72*time.Hour), now.Add(time.Hour)))
		assert.Equal(t, OfferStatusCountered, o.Status)
		assert.Equal(t, int64(6000), o.Amount)

		require.NoError(t, o.Accept(OfferRoleBuyer, "", now.Add(2*time.Hour)))
		assert.Equal(t, OfferStatusAccepted, o.Status)
		require.Len(t, o.History, 3)
		assert.Equal(t, OfferHistoryAccepted, o.History[2].Type)
	})

	t.Run("decline", func(t *testing.T) {
		o := newTestOffer(now)

		require.NoError(t, o.Decline(OfferRoleSeller, "too low", now))
		assert.Equal(t, OfferStatusDeclined, o.Status)
		assert.Equal(t, "too low", o.History[1].Note)
	})

	t.Run("system role cannot negotiate", func(t *testing.T) {
		o := newTestOffer(now)

		err := o.Accept(OfferRoleSystem, "", now)
		assert.ErrorIs(t, err, ErrOfferInvalidRole)
		assert.Len(t, o.History, 1)
	})
}

func TestOffer_TerminalStatesRejectTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, status := range []OfferStatus{OfferStatusAccepted, OfferStatusDeclined, OfferStatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			o := newTestOffer(now)
			o.Status = status
			o.ExpiresAt = now.Add(-time.Hour)
			before := len(o.History)

			assert.ErrorIs(t, o.Counter(OfferRoleSeller, 1, "", now, now), ErrOfferTerminal)
			assert.ErrorIs(t, o.Accept(OfferRoleBuyer, "", now), ErrOfferTerminal)
			assert.ErrorIs(t, o.Decline(OfferRoleBuyer, "", now), ErrOfferTerminal)
			assert.ErrorIs(t, o.Expire(now), ErrOfferTerminal)
			assert.Equal(t, status, o.Status)
			assert.Len(t, o.History, before)
		})
	}
}

func TestOffer_Expire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not yet due", func(t *testing.T) {
		o := newTestOffer(now)

		assert.False(t, o.CanExpire(now))
		assert.ErrorIs(t, o.Expire(now), ErrOfferNotExpired)
		assert.Equal(t, OfferStatusOpen, o.Status)
	})

	t.Run("due exactly at deadline", func(t *testing.T) {
		o := newTestOffer(now)
		deadline := o.ExpiresAt

		assert.True(t, o.CanExpire(deadline))
		require.NoError(t, o.Expire(deadline))
		assert.Equal(t, OfferStatusExpired, o.Status)
		require.Len(t, o.History, 2)
		assert.Equal(t, OfferHistoryExpired, o.History[1].Type)
		assert.Equal(t, OfferRoleSystem, o.History[1].ActorRole)
	})

	t.Run("countered offer expires", func(t *testing.T) {
		o := newTestOffer(now)
		require.NoError(t, o.Counter(OfferRoleSeller, 5500, "", now.Add(time.Hour), now))

		later := now.Add(2 * time.Hour)
		require.NoError(t, o.Expire(later))
		assert.Equal(t, OfferStatusExpired, o.Status)
		assert.ErrorIs(t, o.Expire(later), ErrOfferTerminal)
		assert.Len(t, o.History, 3)
	})
}

func TestOffer_HistoryAmountIsCopied(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := newTestOffer(now)
	require.NoError(t, o.Counter(OfferRoleSeller, 7000, "", now.Add(time.Hour), now))

	o.Amount = 1
	assert.Equal(t, int64(5000), *o.History[0].Amount)
	assert.Equal(t, int64(7000), *o.History[1].Amount)
}

func TestOffer_Counterparty(t *testing.T) {
	o := newTestOffer(time.Now())

	assert.Equal(t, "seller-1", o.Counterparty(OfferRoleBuyer))
	assert.Equal(t, "buyer-1", o.Counterparty(OfferRoleSeller))
}
