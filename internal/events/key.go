package events

import (
	"encoding/hex"

	"github.com/bissquit/eventrelay/internal/domain"
	"golang.org/x/crypto/blake2b"
)

const (
	// MaxIdempotencyKeyLength bounds caller supplied keys.
	MaxIdempotencyKeyLength = 200

	derivedKeyHashLength = 32
)

// DeriveKey computes the idempotency key used when the caller omits one.
// The target user takes part in the hash so per-recipient fan-out of the same
// business object yields distinct events.
func DeriveKey(t domain.EventType, businessKey, targetUserID string) string {
	sum := blake2b.Sum256([]byte(string(t) + "\x00" + businessKey + "\x00" + targetUserID))
	return string(t) + ":" + hex.EncodeToString(sum[:])[:derivedKeyHashLength]
}
