package domain

import (
	"time"
)

// Account status constants.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusLocked   = "locked"
)

// Role constants define the allowed account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Auth provider constants. ProviderLocal means password credentials.
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// ValidRoles returns the set of valid account roles.
func ValidRoles() []string {
	return []string{RoleUser, RoleAdmin}
}

// IsValidRole checks whether the given role string is a valid account role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// Account represents a registered account with its credential and MFA state.
type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	EmailVerified  bool       `json:"email_verified"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	MFAEnabled     bool       `json:"mfa_enabled"`
	MFASecret      string     `json:"-"`
	AuthProvider   string     `json:"auth_provider"`
	ProviderID     string     `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsLockedAt reports whether the account is under an active lockout at the
// given instant. A lockout whose window has already elapsed does not count.
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// IsActive reports whether the account may authenticate at all. A locked
// account counts as active here: the lockout window is enforced separately
// via IsLockedAt, and an elapsed lock is cleared on the next successful login.
func (a *Account) IsActive() bool {
	return a.Status != StatusInactive && a.Status != ""
}

// HasPassword reports whether the account carries local credentials. Accounts
// created through an OAuth provider have no password until they set one.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}
