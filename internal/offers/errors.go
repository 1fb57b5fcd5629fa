package offers

import "errors"

// Domain errors for offers.
var (
	ErrOfferNotFound  = errors.New("offer not found")
	ErrNotParticipant = errors.New("caller is not a party to the offer")
	ErrSelfOffer      = errors.New("buyer and seller must differ")
)
