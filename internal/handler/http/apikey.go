package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	"github.com/finsight/auth/pkg/middleware"
	"github.com/finsight/auth/pkg/validator"
)

// APIKeyHandler handles HTTP requests for API key management endpoints.
type APIKeyHandler struct {
	keys   *service.APIKeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new API key HTTP handler.
func NewAPIKeyHandler(keys *service.APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, logger: logger}
}

// CreateAPIKeyRequest is the JSON request body for minting an API key.
type CreateAPIKeyRequest struct {
	Name      string     `json:"name" validate:"required,min=1,max=100"`
	Scopes    []string   `json:"scopes" validate:"omitempty,dive,min=1,max=50"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateAPIKeyResponse carries the plaintext key. It is shown exactly once.
type CreateAPIKeyResponse struct {
	Key any    `json:"key"`
	Raw string `json:"raw_key"`
}

// Create handles POST /api/v1/auth/api-keys
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	key, plaintext, err := h.keys.Create(r.Context(), accountID, service.CreateKeyInput{
		Name:      req.Name,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
	}, requestMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: CreateAPIKeyResponse{Key: key, Raw: plaintext},
	})
}

// List handles GET /api/v1/auth/api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())

	keys, err := h.keys.List(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: keys})
}

// Revoke handles DELETE /api/v1/auth/api-keys/{id}
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())
	keyID := chi.URLParam(r, "id")

	if err := h.keys.Revoke(r.Context(), accountID, keyID, requestMeta(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "api key revoked"},
	})
}
