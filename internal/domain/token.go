package domain

import (
	"time"
)

// Ephemeral token purposes.
const (
	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
	PurposeOAuthState        = "oauth_state"
)

// EphemeralToken is a short-lived single-use token. Only a hash of the token
// value is stored; the plaintext exists once at issuance.
type EphemeralToken struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id,omitempty"`
	TokenHash string     `json:"-"`
	Purpose   string     `json:"purpose"`
	Provider  string     `json:"provider,omitempty"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpiredAt reports whether the token lifetime has elapsed at the given
// instant.
func (t *EphemeralToken) IsExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// BackupCode is one of the single-use MFA recovery codes issued at setup.
// Only a bcrypt hash of the code is stored.
type BackupCode struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	CodeHash  string     `json:"-"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
