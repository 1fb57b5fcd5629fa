package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/google/uuid"
)

// ChannelPolicy maps event types to the channels their target user is
// notified on.
type ChannelPolicy map[domain.EventType][]domain.JobKind

// DefaultChannelPolicy sends every event by email and the time-sensitive ones
// by SMS as well.
func DefaultChannelPolicy() ChannelPolicy {
	policy := make(ChannelPolicy, len(domain.EventTypes))
	for _, t := range domain.EventTypes {
		policy[t] = []domain.JobKind{domain.JobKindEmail}
	}
	for _, t := range []domain.EventType{
		domain.EventTypeAuctionWon,
		domain.EventTypeOfferAccepted,
		domain.EventTypeMessageReceived,
	} {
		policy[t] = append(policy[t], domain.JobKindSMS)
	}
	return policy
}

// Enqueuer creates channel jobs for events.
type Enqueuer struct {
	repo     Repository
	contacts ContactDirectory
	renderer *Renderer
	policy   ChannelPolicy
	now      func() time.Time
}

// NewEnqueuer creates a new job enqueuer.
func NewEnqueuer(repo Repository, contacts ContactDirectory, renderer *Renderer, policy ChannelPolicy) *Enqueuer {
	return &Enqueuer{
		repo:     repo,
		contacts: contacts,
		renderer: renderer,
		policy:   policy,
		now:      time.Now,
	}
}

// Enqueue creates one job per policy channel the target user can be reached
// on. Jobs that already exist for the event are not duplicated; only newly
// created jobs are returned.
func (e *Enqueuer) Enqueue(ctx context.Context, event *domain.Event, deliverAfter time.Time) ([]*domain.Job, error) {
	kinds := e.policy[event.Type]
	if len(kinds) == 0 {
		return nil, nil
	}

	contact, err := e.contacts.GetContact(ctx, event.TargetUserID)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			slog.Debug("no contact for user, skipping channel jobs", "user_id", event.TargetUserID, "event_id", event.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}

	now := e.now().UTC()
	jobs := make([]*domain.Job, 0, len(kinds))
	for _, kind := range kinds {
		recipient := contact.AddressFor(kind)
		if recipient == "" {
			slog.Debug("user not reachable on channel", "user_id", event.TargetUserID, "kind", kind)
			continue
		}

		content, err := e.renderer.Render(kind, event)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", kind, err)
		}

		jobs = append(jobs, &domain.Job{
			ID:             uuid.NewString(),
			Kind:           kind,
			Status:         domain.JobStatusQueued,
			Attempts:       0,
			MaxAttempts:    MaxAttempts,
			DeliverAfterAt: deliverAfter,
			UserID:         event.TargetUserID,
			Recipient:      recipient,
			Subject:        content.Subject,
			Body:           content.Body,
			EventID:        event.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if len(jobs) == 0 {
		return nil, nil
	}

	created, err := e.repo.InsertJobs(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("insert jobs: %w", err)
	}

	for _, job := range created {
		recordEnqueued(job.Kind)
	}
	slog.Debug("jobs enqueued", "event_id", event.ID, "created", len(created), "requested", len(jobs))
	return created, nil
}
