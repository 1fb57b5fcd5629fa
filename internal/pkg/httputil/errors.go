package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/eventrelay/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
)

// ErrorMapping maps a domain error to an HTTP status.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // err.Error() when empty
}

// HandleError writes the response for the first mapping err matches.
// Validator errors become 400s and a request that outlived its deadline a
// 503; anything else is logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		ValidationError(w, validationErrors)
	case errors.Is(err, context.DeadlineExceeded):
		ctxlog.FromContext(ctx).Warn("request timed out", "error", err)
		Error(w, http.StatusServiceUnavailable, "request timed out")
	default:
		ctxlog.FromContext(ctx).Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
