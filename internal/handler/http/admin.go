package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	"github.com/finsight/auth/pkg/middleware"
	"github.com/finsight/auth/pkg/validator"
)

// AdminHandler handles HTTP requests for operator endpoints. All routes are
// mounted behind the admin role guard.
type AdminHandler struct {
	accounts *service.AccountService
	audit    *service.AuditService
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(accounts *service.AccountService, audit *service.AuditService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, audit: audit, logger: logger}
}

// SetRoleRequest is the JSON request body for a role change.
type SetRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SystemAuditLogs handles GET /api/v1/admin/audit/logs
func (h *AdminHandler) SystemAuditLogs(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.audit.ListAllEvents(r.Context(), eventType, limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: events})
}

// AuditLogs handles GET /api/v1/admin/audit/logs/{accountID}
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.audit.ListEvents(r.Context(), accountID, limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: events})
}

// Suspicion handles GET /api/v1/admin/audit/suspicion/{accountID}
func (h *AdminHandler) Suspicion(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ip := r.URL.Query().Get("ip")

	report, err := h.audit.CheckSuspicious(r.Context(), accountID, ip)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: report})
}

// SetRole handles PUT /api/v1/admin/users/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	actorID := middleware.AccountIDFromContext(r.Context())
	accountID := chi.URLParam(r, "id")

	account, err := h.accounts.SetRole(r.Context(), actorID, accountID, req.Role, requestMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: account})
}

// Deactivate handles POST /api/v1/admin/users/{id}/deactivate
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	if err := h.accounts.Deactivate(r.Context(), accountID, requestMeta(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "account deactivated"},
	})
}
