package inbox

import (
	"net/http"
	"strconv"

	"github.com/bissquit/eventrelay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Pagination constants.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrForbidden, Status: http.StatusForbidden, Message: "insufficient permissions"},
}

// Handler handles HTTP requests for the inbox.
type Handler struct {
	service *Service
}

// NewHandler creates a new inbox handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers inbox routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{userID}/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Post("/{id}/read", h.MarkRead)
		r.Post("/{id}/archive", h.Archive)
	})
}

// ListNotifications handles GET /users/{userID}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		UnreadOnly:      q.Get("unread") == "true",
		IncludeArchived: q.Get("include_archived") == "true",
		Limit:           DefaultListLimit,
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

	inbox, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, inbox)
}

// MarkRead handles POST /users/{userID}/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	n, err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// Archive handles POST /users/{userID}/notifications/{id}/archive.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	n, err := h.service.Archive(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// authorize lets users read their own inbox and operators read any inbox.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	if !httputil.CanActFor(r.Context(), userID) {
		httputil.HandleError(r.Context(), w, ErrForbidden, errorMappings)
		return "", false
	}
	return userID, true
}
