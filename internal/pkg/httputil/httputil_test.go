package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	tokens map[string]domain.Role
}

func (f fakeValidator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	role, ok := f.tokens[token]
	if !ok {
		return "", "", errors.New("bad token")
	}
	return "user-" + token, role, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func TestAuthMiddleware(t *testing.T) {
	validator := fakeValidator{tokens: map[string]domain.Role{"u": domain.RoleUser, "op": domain.RoleOperator}}

	var gotUser string
	var gotRole domain.Role
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid", "Bearer u", http.StatusNoContent, "user-u"},
		{"scheme is case insensitive", "bearer op", http.StatusNoContent, "user-op"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic dTpw", http.StatusUnauthorized, ""},
		{"empty token", "Bearer  ", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRole = "", ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.NotEmpty(t, decodeError(t, rec).Message)
				assert.Empty(t, gotRole)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(domain.RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		ctx        func(context.Context) context.Context
		wantStatus int
	}{
		{"no caller", func(ctx context.Context) context.Context { return ctx }, http.StatusUnauthorized},
		{"user", func(ctx context.Context) context.Context { return WithCaller(ctx, "u1", domain.RoleUser) }, http.StatusForbidden},
		{"operator", func(ctx context.Context) context.Context { return WithCaller(ctx, "o1", domain.RoleOperator) }, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/queue/stats", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req.WithContext(tt.ctx(req.Context())))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCanActFor(t *testing.T) {
	user := WithCaller(context.Background(), "u1", domain.RoleUser)
	operator := WithCaller(context.Background(), "ops", domain.RoleOperator)

	assert.True(t, CanActFor(user, "u1"))
	assert.False(t, CanActFor(user, "u2"))
	assert.True(t, CanActFor(operator, "u2"))
	assert.False(t, CanActFor(context.Background(), "u1"))
	assert.False(t, IsOperator(user))
}

var errThingNotFound = errors.New("thing not found")

func TestHandleError(t *testing.T) {
	mappings := []ErrorMapping{
		{Error: errThingNotFound, Status: http.StatusNotFound, Message: "thing not found"},
	}

	type input struct {
		TargetUserID string `validate:"required"`
	}
	validationErr := validator.New().Struct(input{})
	require.Error(t, validationErr)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"mapped and wrapped", fmt.Errorf("get thing: %w", errThingNotFound), http.StatusNotFound, "thing not found"},
		{"validation", fmt.Errorf("emit: %w", validationErr), http.StatusBadRequest, "validation error"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "request timed out"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMessage, decodeError(t, rec).Message)
		})
	}
}

func TestValidationError_FieldNames(t *testing.T) {
	type request struct {
		TargetUserID   string `validate:"required"`
		IdempotencyKey string `validate:"max=3"`
	}
	err := validator.New().Struct(request{IdempotencyKey: "toolong"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env struct {
		Error struct {
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.ElementsMatch(t, []FieldError{
		{Field: "target_user_id", Message: "required"},
		{Field: "idempotency_key", Message: "max=3"},
	}, env.Error.Details)
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"ID":           "id",
		"Type":         "type",
		"EntityType":   "entity_type",
		"TargetUserID": "target_user_id",
		"HTTPStatus":   "http_status",
	} {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]bool{"created": true})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"created":true}}`, rec.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://market.test"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/events", nil)
		req.Header.Set("Origin", "https://market.test")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://market.test", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		req.Header.Set("Origin", "https://evil.test")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, "ERROR", requestLevel("/api/v1/events", 500).String())
	assert.Equal(t, "WARN", requestLevel("/api/v1/events", 404).String())
	assert.Equal(t, "DEBUG", requestLevel("/healthz", 200).String())
	assert.Equal(t, "INFO", requestLevel("/api/v1/events", 201).String())
}
