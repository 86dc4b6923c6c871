package domain

import (
	"time"
)

// APIKey represents a long-lived programmatic credential. The plaintext key
// is shown once at creation; storage keeps a bcrypt hash for verification and
// a deterministic lookup hash for retrieval.
type APIKey struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	LookupHash string     `json:"-"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRevoked reports whether the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpiredAt reports whether an expiry is set and has elapsed.
func (k *APIKey) IsExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
