// Package events provides idempotent domain event emission.
package events

import (
	"context"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Repository defines the interface for event storage.
type Repository interface {
	// CreateIfAbsent inserts the event unless an event with the same ID exists.
	// It reports whether this call created the row.
	CreateIfAbsent(ctx context.Context, event *domain.Event) (bool, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListEvents(ctx context.Context, filters EventFilters) ([]*domain.Event, error)
}

// EventFilters holds filter options for listing events.
type EventFilters struct {
	Type         *domain.EventType
	TargetUserID string
	EntityID     string
	Limit        int
	Offset       int
}

// Materializer derives the in-app notification for an event.
type Materializer interface {
	Materialize(ctx context.Context, event *domain.Event) (*domain.Notification, error)
}

// Enqueuer creates channel jobs for an event and returns the jobs it created.
type Enqueuer interface {
	Enqueue(ctx context.Context, event *domain.Event, deliverAfter time.Time) ([]*domain.Job, error)
}

// DispatchTrigger asks the dispatcher of a kind to run soon. It must not block.
type DispatchTrigger interface {
	Nudge(kind domain.JobKind)
}
