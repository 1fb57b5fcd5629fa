package events

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrEventNotFound, Status: http.StatusNotFound, Message: "event not found"},
	{Error: ErrIdempotencyKeyTooLong, Status: http.StatusBadRequest, Message: "idempotency_key must be at most 200 characters"},
	{Error: domain.ErrUnknownEventType, Status: http.StatusBadRequest, Message: "unknown event type"},
	{Error: domain.ErrPayloadMismatch, Status: http.StatusBadRequest, Message: "payload does not match event type"},
}

// Handler handles HTTP requests for the events module.
type Handler struct {
	emitter   *Emitter
	validator *validator.Validate
}

// NewHandler creates a new events handler.
func NewHandler(emitter *Emitter) *Handler {
	return &Handler{
		emitter:   emitter,
		validator: domain.NewValidator(),
	}
}

// RegisterRoutes registers the emit endpoint used by business services.
// Emitting needs at least RoleService: events fan out to other users' inboxes
// and channels, and scanner keys must not be claimable by end users.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(httputil.RequireRole(domain.RoleService)).Post("/events", h.EmitEvent)
}

// RegisterOperatorRoutes registers routes that require operator role.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
	r.Post("/events/{id}/replay", h.ReplayEvent)
}

// EmitEventRequest represents request body for emitting an event.
type EmitEventRequest struct {
	Type           string          `json:"type" validate:"required"`
	ActorID        *string         `json:"actor_id"`
	EntityType     string          `json:"entity_type" validate:"required,max=64"`
	EntityID       string          `json:"entity_id" validate:"required,max=128"`
	TargetUserID   string          `json:"target_user_id" validate:"required,max=128"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
	DeliverAfter   *time.Time      `json:"deliver_after"`
}

// EmitEvent handles POST /events.
func (h *Handler) EmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	eventType := domain.EventType(req.Type)
	payload, err := domain.DecodePayload(eventType, req.Payload)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEventType) {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := h.emitter.Emit(r.Context(), EmitInput{
		Type:           eventType,
		ActorID:        req.ActorID,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		TargetUserID:   req.TargetUserID,
		Payload:        payload,
		IdempotencyKey: req.IdempotencyKey,
		DeliverAfter:   req.DeliverAfter,
	})
	if err != nil {
		h.handleEmitError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.Success(w, status, result)
}

// ListEvents handles GET /admin/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := EventFilters{
		TargetUserID: q.Get("target_user_id"),
		EntityID:     q.Get("entity_id"),
		Limit:        DefaultListLimit,
	}

	if t := q.Get("type"); t != "" {
		eventType := domain.EventType(t)
		if !eventType.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "unknown event type")
			return
		}
		filters.Type = &eventType
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filters.Limit = min(limit, MaxListLimit)
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filters.Offset = offset
	}

	events, err := h.emitter.ListEvents(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, events)
}

// GetEvent handles GET /admin/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.emitter.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, event)
}

// ReplayEvent handles POST /admin/events/{id}/replay.
func (h *Handler) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.emitter.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, event)
}

func (h *Handler) handleEmitError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		httputil.ValidationError(w, validationErrors)
		return
	}
	if errors.Is(err, ErrInvalidEvent) && !errors.Is(err, domain.ErrPayloadMismatch) && !errors.Is(err, domain.ErrUnknownEventType) {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
