// Package inbox materializes events into per-user in-app notifications.
package inbox

import (
	"context"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Repository defines the interface for notification storage.
type Repository interface {
	// Upsert inserts the notification or merges content into the existing row
	// with the same ID, preserving read and archive state.
	Upsert(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, filter ListFilter) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) (*domain.Notification, error)
	Archive(ctx context.Context, userID, id string, at time.Time) (*domain.Notification, error)
}

// ListFilter holds filter options for listing a user's notifications.
type ListFilter struct {
	UnreadOnly      bool
	IncludeArchived bool
	Limit           int
	Offset          int
}
