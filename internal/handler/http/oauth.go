package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	"github.com/finsight/auth/pkg/validator"
)

// OAuthHandler handles HTTP requests for the OAuth login flow.
type OAuthHandler struct {
	oauth  *service.OAuthService
	logger *slog.Logger
}

// NewOAuthHandler creates a new OAuth HTTP handler.
func NewOAuthHandler(oauth *service.OAuthService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, logger: logger}
}

// OAuthCallbackRequest is the JSON request body for the callback exchange.
type OAuthCallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

// AuthURL handles GET /api/v1/auth/oauth/{provider}/url
func (h *OAuthHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	url, err := h.oauth.BeginAuth(r.Context(), provider)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"url": url},
	})
}

// Callback handles POST /api/v1/auth/oauth/{provider}/callback
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req OAuthCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	provider := chi.URLParam(r, "provider")
	result, err := h.oauth.HandleCallback(r.Context(), provider, req.Code, req.State, requestMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: AuthResponse{
		Account: result.Account,
		Tokens:  result.Tokens,
	}})
}
