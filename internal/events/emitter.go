package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/go-playground/validator/v10"
)

// EmitInput holds data for emitting an event.
type EmitInput struct {
	Type           domain.EventType `validate:"required"`
	ActorID        *string
	EntityType     string         `validate:"required,max=64"`
	EntityID       string         `validate:"required,max=128"`
	TargetUserID   string         `validate:"required,max=128"`
	Payload        domain.Payload `validate:"-"`
	IdempotencyKey string         `validate:"max=200"`
	// DeliverAfter schedules channel jobs for later; nil means now.
	DeliverAfter *time.Time
}

// EmitResult reports the outcome of an emit call.
type EmitResult struct {
	OK      bool   `json:"ok"`
	Created bool   `json:"created"`
	EventID string `json:"event_id"`
}

// Emitter persists events exactly once per idempotency key and drives their
// side effects.
type Emitter struct {
	repo         Repository
	materializer Materializer
	enqueuer     Enqueuer
	trigger      DispatchTrigger
	validate     *validator.Validate
	now          func() time.Time
}

// NewEmitter creates a new event emitter. materializer, enqueuer and trigger
// may be nil.
func NewEmitter(repo Repository, materializer Materializer, enqueuer Enqueuer, trigger DispatchTrigger) *Emitter {
	return &Emitter{
		repo:         repo,
		materializer: materializer,
		enqueuer:     enqueuer,
		trigger:      trigger,
		validate:     domain.NewValidator(),
		now:          time.Now,
	}
}

// Emit validates and persists an event. A second call with the same
// idempotency key returns Created=false and the original event ID without
// running any side effect.
//
// Side effects of a newly created event (notification, jobs, dispatch nudge)
// never fail the call: they are logged and can be repaired with Replay.
func (e *Emitter) Emit(ctx context.Context, input EmitInput) (EmitResult, error) {
	if err := e.validateInput(input); err != nil {
		recordEmit(input.Type, "invalid")
		return EmitResult{}, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = DeriveKey(input.Type, input.Payload.BusinessKey(), input.TargetUserID)
	}

	now := e.now().UTC()
	event := &domain.Event{
		ID:             key,
		Type:           input.Type,
		ActorID:        input.ActorID,
		EntityType:     input.EntityType,
		EntityID:       input.EntityID,
		TargetUserID:   input.TargetUserID,
		Payload:        input.Payload,
		IdempotencyKey: key,
		CreatedAt:      now,
	}

	created, err := e.repo.CreateIfAbsent(ctx, event)
	if err != nil {
		recordEmit(input.Type, "error")
		return EmitResult{}, fmt.Errorf("create event: %w", err)
	}

	if !created {
		recordEmit(input.Type, "duplicate")
		slog.Debug("duplicate event suppressed", "event_id", key, "type", input.Type)
		return EmitResult{OK: true, Created: false, EventID: key}, nil
	}

	recordEmit(input.Type, "created")
	slog.Info("event emitted",
		"event_id", key,
		"type", input.Type,
		"entity_type", input.EntityType,
		"entity_id", input.EntityID,
		"target_user_id", input.TargetUserID,
	)

	deliverAfter := now
	if input.DeliverAfter != nil && input.DeliverAfter.After(now) {
		deliverAfter = input.DeliverAfter.UTC()
	}
	e.runSideEffects(ctx, event, deliverAfter)

	return EmitResult{OK: true, Created: true, EventID: key}, nil
}

// Replay re-runs notification materialization and job enqueueing for an
// existing event. Both steps are idempotent, so replaying a healthy event is
// a no-op.
func (e *Emitter) Replay(ctx context.Context, eventID string) (*domain.Event, error) {
	event, err := e.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	slog.Info("replaying event side effects", "event_id", event.ID, "type", event.Type)
	e.runSideEffects(ctx, event, e.now().UTC())
	return event, nil
}

// GetEvent retrieves an event by ID.
func (e *Emitter) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	return e.repo.GetEvent(ctx, id)
}

// ListEvents retrieves events with optional filters.
func (e *Emitter) ListEvents(ctx context.Context, filters EventFilters) ([]*domain.Event, error) {
	return e.repo.ListEvents(ctx, filters)
}

func (e *Emitter) runSideEffects(ctx context.Context, event *domain.Event, deliverAfter time.Time) {
	if e.materializer != nil {
		if _, err := e.materializer.Materialize(ctx, event); err != nil {
			recordSideEffectFailure("materialize")
			slog.Error("failed to materialize notification", "event_id", event.ID, "error", err)
		}
	}

	if e.enqueuer == nil {
		return
	}

	jobs, err := e.enqueuer.Enqueue(ctx, event, deliverAfter)
	if err != nil {
		recordSideEffectFailure("enqueue")
		slog.Error("failed to enqueue jobs", "event_id", event.ID, "error", err)
	}

	if e.trigger == nil || deliverAfter.After(e.now()) {
		return
	}

	nudged := make(map[domain.JobKind]bool, len(jobs))
	for _, job := range jobs {
		if nudged[job.Kind] {
			continue
		}
		nudged[job.Kind] = true
		e.trigger.Nudge(job.Kind)
	}
}

func (e *Emitter) validateInput(input EmitInput) error {
	if len(input.IdempotencyKey) > MaxIdempotencyKeyLength {
		return ErrIdempotencyKeyTooLong
	}
	if err := domain.CheckPayload(input.Type, input.Payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := e.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := e.validate.Struct(input.Payload); err != nil {
		return fmt.Errorf("%w: payload: %w", ErrInvalidEvent, err)
	}
	return nil
}
