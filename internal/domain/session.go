package domain

import (
	"time"
)

// Session represents one authenticated device session. Each session owns an
// access/refresh token pair identified by their JWT IDs.
type Session struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	AccessJTI    string     `json:"-"`
	RefreshJTI   string     `json:"-"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	RememberMe   bool       `json:"remember_me"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// IsRevoked reports whether the session has been explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpiredAt reports whether the session lifetime has elapsed at the given
// instant.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// TokenPair holds an issued access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
