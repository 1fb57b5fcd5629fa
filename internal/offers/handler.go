package offers

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrOfferNotFound, Status: http.StatusNotFound, Message: "offer not found"},
	{Error: ErrNotParticipant, Status: http.StatusForbidden, Message: "insufficient permissions"},
	{Error: ErrSelfOffer, Status: http.StatusBadRequest, Message: "cannot make an offer to yourself"},
	{Error: domain.ErrOfferTerminal, Status: http.StatusConflict, Message: "offer is closed"},
	{Error: domain.ErrOfferInvalidRole, Status: http.StatusForbidden, Message: "insufficient permissions"},
}

// Handler handles HTTP requests for offers.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new offers handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: domain.NewValidator(),
	}
}

// RegisterRoutes registers offer routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.CreateOffer)
		r.Get("/{id}", h.GetOffer)
		r.Post("/{id}/counter", h.CounterOffer)
		r.Post("/{id}/accept", h.AcceptOffer)
		r.Post("/{id}/decline", h.DeclineOffer)
	})
}

// NoteRequest is the body of accept and decline requests.
type NoteRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// CreateOffer handles POST /offers.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	offer, err := h.service.Create(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, offer)
}

// GetOffer handles GET /offers/{id}.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	isOperator := httputil.IsOperator(ctx)

	offer, err := h.service.Get(ctx, httputil.GetUserID(ctx), isOperator, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(ctx, w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, offer)
}

// CounterOffer handles POST /offers/{id}/counter.
func (h *Handler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	var req CounterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	offer, err := h.service.Counter(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, offer)
}

// AcceptOffer handles POST /offers/{id}/accept.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeNote(w, r)
	if !ok {
		return
	}

	offer, err := h.service.Accept(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, offer)
}

// DeclineOffer handles POST /offers/{id}/decline.
func (h *Handler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeNote(w, r)
	if !ok {
		return
	}

	offer, err := h.service.Decline(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, offer)
}

// decodeNote reads an optional note body. An empty body is allowed.
func (h *Handler) decodeNote(w http.ResponseWriter, r *http.Request) (NoteRequest, bool) {
	var req NoteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return req, false
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}
