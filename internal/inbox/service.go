package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Service materializes notifications and serves the inbox.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new inbox service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// NotificationID returns the deterministic notification ID for an event.
func NotificationID(event *domain.Event) string {
	if event.ID != "" {
		return "evt:" + event.ID
	}
	return fmt.Sprintf("cmp:%s:%s:%s", event.Type, event.EntityID, event.TargetUserID)
}

// Materialize creates or refreshes the target user's notification for event.
// Calling it again for the same event touches the same row.
func (s *Service) Materialize(ctx context.Context, event *domain.Event) (*domain.Notification, error) {
	summary := event.Summary()
	now := s.now().UTC()

	n := &domain.Notification{
		ID:        NotificationID(event),
		UserID:    event.TargetUserID,
		EventID:   event.ID,
		Type:      event.Type,
		Title:     summary.Title,
		Body:      summary.Body,
		Link:      summary.Link,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Upsert(ctx, n); err != nil {
		return nil, fmt.Errorf("upsert notification: %w", err)
	}
	return n, nil
}

// Inbox is one page of a user's notifications.
type Inbox struct {
	Notifications []*domain.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) (*Inbox, error) {
	items, err := s.repo.ListNotifications(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &Inbox{Notifications: items, UnreadCount: unread}, nil
}

// MarkRead marks a notification as read. Already read notifications keep
// their original read time.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	return s.repo.MarkRead(ctx, userID, id, s.now().UTC())
}

// Archive hides a notification from the default inbox view.
func (s *Service) Archive(ctx context.Context, userID, id string) (*domain.Notification, error) {
	return s.repo.Archive(ctx, userID, id, s.now().UTC())
}
