package jobs

import (
	"encoding/json"
	"net/http"
	"strconv"

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
	{Error: ErrDeadLetterNotFound, Status: http.StatusNotFound, Message: "dead letter not found"},
	{Error: ErrJobNotFound, Status: http.StatusNotFound, Message: "job not found"},
	{Error: ErrDeadLetterSuppressed, Status: http.StatusConflict, Message: "dead letter is suppressed"},
	{Error: ErrJobNotFailed, Status: http.StatusConflict, Message: "job was already re-queued"},
}

// Handler handles operator HTTP requests for the job queue.
type Handler struct {
	service   *DeadLetterService
	validator *validator.Validate
}

// NewHandler creates a new jobs handler.
func NewHandler(service *DeadLetterService) *Handler {
	return &Handler{
		service:   service,
		validator: domain.NewValidator(),
	}
}

// RegisterOperatorRoutes registers routes that require operator role.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Route("/dead-letters", func(r chi.Router) {
		r.Get("/", h.ListDeadLetters)
		r.Get("/{id}", h.GetDeadLetter)
		r.Patch("/{id}", h.UpdateDeadLetter)
		r.Post("/{id}/retry", h.RetryDeadLetter)
	})
	r.Get("/queue/stats", h.GetQueueStats)
}

// UpdateDeadLetterRequest represents request body for updating a dead letter.
type UpdateDeadLetterRequest struct {
	Suppressed *bool `json:"suppressed" validate:"required"`
}

// ListDeadLetters handles GET /admin/dead-letters.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := DeadLetterFilter{
		UserID:            q.Get("user_id"),
		IncludeSuppressed: q.Get("include_suppressed") == "true",
		Limit:             DefaultListLimit,
	}

	if v := q.Get("kind"); v != "" {
		kind := domain.JobKind(v)
		if !kind.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid kind")
			return
		}
		filter.Kind = &kind
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(limit, MaxListLimit)
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	deadLetters, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, deadLetters)
}

// GetDeadLetter handles GET /admin/dead-letters/{id}.
func (h *Handler) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	dl, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, dl)
}

// UpdateDeadLetter handles PATCH /admin/dead-letters/{id}.
func (h *Handler) UpdateDeadLetter(w http.ResponseWriter, r *http.Request) {
	var req UpdateDeadLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	dl, err := h.service.SetSuppressed(r.Context(), chi.URLParam(r, "id"), *req.Suppressed)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, dl)
}

// RetryDeadLetter handles POST /admin/dead-letters/{id}/retry.
func (h *Handler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, job)
}

// GetQueueStats handles GET /admin/queue/stats.
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
