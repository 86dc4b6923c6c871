package domain

import (
	"encoding/json"
	"time"
)

// Audit event type constants. These are stable identifiers used in storage,
// Kafka payloads and suspicious-activity queries.
const (
	AuditLoginSuccess    = "login_success"
	AuditLoginFailed     = "login_failed"
	AuditLoginBlocked    = "login_blocked"
	AuditAccountLocked   = "account_locked"
	AuditAccountCreated  = "account_created"
	AuditLogout          = "logout"
	AuditTokenRefreshed  = "token_refreshed"
	AuditPasswordChanged = "password_changed"
	AuditPasswordReset   = "password_reset"
	AuditEmailVerified   = "email_verified"
	AuditMFAEnabled      = "mfa_enabled"
	AuditMFADisabled     = "mfa_disabled"
	AuditMFAFailed       = "mfa_failed"
	AuditOAuthLogin      = "oauth_login"
	AuditOAuthLinked     = "oauth_linked"
	AuditSessionRevoked  = "session_revoked"
	AuditAPIKeyCreated   = "api_key_created"
	AuditAPIKeyRevoked   = "api_key_revoked"
	AuditRoleChanged     = "role_changed"
)

// AuditEvent is one row of the security audit trail.
type AuditEvent struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id,omitempty"`
	EventType string          `json:"event_type"`
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SuspicionReason constants returned by the suspicious-activity check.
const (
	SuspicionRepeatedFailures = "repeated_login_failures"
	SuspicionNewLocation      = "new_location"
)

// SuspicionReport summarizes the outcome of a suspicious-activity check for
// one account.
type SuspicionReport struct {
	AccountID   string   `json:"account_id"`
	Suspicious  bool     `json:"suspicious"`
	Reasons     []string `json:"reasons,omitempty"`
	FailedCount int      `json:"failed_count"`
}
