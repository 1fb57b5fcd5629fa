package inbox

import "errors"

// Inbox errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrForbidden            = errors.New("notifications belong to another user")
)
