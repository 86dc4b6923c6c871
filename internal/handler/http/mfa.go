package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	"github.com/finsight/auth/pkg/middleware"
	"github.com/finsight/auth/pkg/validator"
)

// MFAHandler handles HTTP requests for multi-factor enrollment endpoints.
type MFAHandler struct {
	mfa      *service.MFAService
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewMFAHandler creates a new MFA HTTP handler.
func NewMFAHandler(mfa *service.MFAService, accounts *service.AccountService, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{mfa: mfa, accounts: accounts, logger: logger}
}

// MFACodeRequest is the JSON request body carrying a verification code.
type MFACodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// MFAVerifyRequest is the JSON request body for a verification check. When
// IsBackup is set the code is checked only against the unused backup codes.
type MFAVerifyRequest struct {
	Code     string `json:"code" validate:"required,min=6,max=16"`
	IsBackup bool   `json:"is_backup"`
}

// MFAPasswordRequest is the JSON request body for operations that require a
// fresh password confirmation.
type MFAPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// Setup handles POST /api/v1/auth/mfa/setup
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())

	result, err := h.mfa.Setup(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Enable handles POST /api/v1/auth/mfa/enable
func (h *MFAHandler) Enable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	if err := h.mfa.Enable(r.Context(), accountID, req.Code, requestMeta(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "mfa enabled"},
	})
}

// Verify handles POST /api/v1/auth/mfa/verify
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.mfa.VerifyCode(r.Context(), account, req.Code, req.IsBackup); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]bool{"valid": true},
	})
}

// Disable handles POST /api/v1/auth/mfa/disable
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req MFAPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	if err := h.mfa.Disable(r.Context(), accountID, req.Password, requestMeta(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "mfa disabled"},
	})
}

// RegenerateBackupCodes handles POST /api/v1/auth/mfa/backup-codes
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req MFAPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	codes, err := h.mfa.RegenerateBackupCodes(r.Context(), accountID, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{"backup_codes": codes},
	})
}
