package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	"github.com/finsight/auth/pkg/middleware"
)

// AuditHandler handles HTTP requests for the account's own audit trail.
type AuditHandler struct {
	audit  *service.AuditService
	logger *slog.Logger
}

// NewAuditHandler creates a new audit HTTP handler.
func NewAuditHandler(audit *service.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// Logs handles GET /api/v1/auth/audit/logs
func (h *AuditHandler) Logs(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.audit.ListEvents(r.Context(), accountID, limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: events})
}
