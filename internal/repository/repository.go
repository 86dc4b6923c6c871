package repository

import (
	"context"
	"time"

	"github.com/finsight/auth/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account into the store.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByEmail retrieves an account by its email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByUsername retrieves an account by its username.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetByProvider retrieves an account by OAuth provider and provider ID.
	GetByProvider(ctx context.Context, provider, providerID string) (*domain.Account, error)

	// Update modifies an existing account in the store.
	Update(ctx context.Context, account *domain.Account) error

	// IncrementFailedAttempts atomically increments the failed login counter
	// and returns the new value.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)

	// Lock sets the lockout deadline on the account.
	Lock(ctx context.Context, id string, until time.Time) error

	// ResetLockout clears the failed attempt counter and any lockout deadline.
	ResetLockout(ctx context.Context, id string) error
}

// SessionRepository defines the interface for session persistence operations.
type SessionRepository interface {
	// Create inserts a new session into the store.
	Create(ctx context.Context, session *domain.Session) error

	// GetByID retrieves a session by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// ListActiveByAccount returns all unrevoked, unexpired sessions for the
	// account, most recently active first.
	ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error)

	// RotateTokens swaps the session's token identifiers after a refresh and
	// bumps the last-active timestamp.
	RotateTokens(ctx context.Context, sessionID, accessJTI, refreshJTI string, expiresAt time.Time) error

	// Revoke marks the session revoked and returns the revoked session so the
	// caller can blacklist its token identifiers.
	Revoke(ctx context.Context, sessionID string) (*domain.Session, error)

	// RevokeAllForAccount revokes every active session for the account,
	// skipping exceptSessionID when non-empty, and returns the revoked
	// sessions.
	RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID string) ([]domain.Session, error)

	// DeleteExpired removes sessions whose lifetime elapsed before the cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenBlacklist defines the interface for revoked-token tracking shared by
// all service instances.
type TokenBlacklist interface {
	// Add records a token identifier as revoked until its natural expiry.
	Add(ctx context.Context, jti string, expiresAt time.Time) error

	// Contains reports whether the token identifier has been revoked.
	Contains(ctx context.Context, jti string) (bool, error)
}

// EphemeralTokenRepository defines the interface for single-use token
// persistence operations.
type EphemeralTokenRepository interface {
	// Create inserts a new ephemeral token into the store.
	Create(ctx context.Context, token *domain.EphemeralToken) error

	// Redeem atomically marks the matching unused, unexpired token as used
	// and returns it. An expired match yields the stored token with an
	// expiry error so callers can distinguish expired from unknown.
	Redeem(ctx context.Context, tokenHash, purpose string) (*domain.EphemeralToken, error)

	// InvalidateForAccount marks all outstanding tokens of the given purpose
	// for the account as used.
	InvalidateForAccount(ctx context.Context, accountID, purpose string) error

	// DeleteExpired removes tokens that expired before the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// BackupCodeRepository defines the interface for MFA backup code persistence
// operations.
type BackupCodeRepository interface {
	// Replace atomically swaps the account's backup codes for a new set of
	// code hashes.
	Replace(ctx context.Context, accountID string, codeHashes []string) error

	// ListUnused returns the account's unused backup codes.
	ListUnused(ctx context.Context, accountID string) ([]domain.BackupCode, error)

	// MarkUsed consumes a backup code. It fails if the code was already
	// consumed by a concurrent request.
	MarkUsed(ctx context.Context, id string) error

	// DeleteForAccount removes all backup codes for the account.
	DeleteForAccount(ctx context.Context, accountID string) error
}

// AuditRepository defines the interface for security audit trail persistence.
type AuditRepository interface {
	// Create inserts a new audit event into the store.
	Create(ctx context.Context, event *domain.AuditEvent) error

	// ListByAccount returns the account's events, newest first.
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.AuditEvent, error)

	// CountFailedLoginsSince counts failed login events for the account
	// recorded at or after the cutoff.
	CountFailedLoginsSince(ctx context.Context, accountID string, since time.Time) (int, error)

	// HasSuccessFromIP reports whether the account has a successful login
	// from the given IP at or after the cutoff.
	HasSuccessFromIP(ctx context.Context, accountID, ipAddress string, since time.Time) (bool, error)

	// HasAnySuccessSince reports whether the account has any successful
	// login at or after the cutoff, regardless of IP.
	HasAnySuccessSince(ctx context.Context, accountID string, since time.Time) (bool, error)

	// ListAll returns events across all accounts, newest first, optionally
	// restricted to a single event type.
	ListAll(ctx context.Context, eventType string, limit, offset int) ([]domain.AuditEvent, error)

	// DeleteOlderThan removes events recorded before the cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// APIKeyRepository defines the interface for API key persistence operations.
type APIKeyRepository interface {
	// Create inserts a new API key into the store.
	Create(ctx context.Context, key *domain.APIKey) error

	// GetByLookupHash retrieves a key by its deterministic lookup hash.
	GetByLookupHash(ctx context.Context, lookupHash string) (*domain.APIKey, error)

	// ListByAccount returns all keys belonging to the account, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]domain.APIKey, error)

	// Revoke marks the key revoked. The account ID guards against revoking
	// another account's key.
	Revoke(ctx context.Context, accountID, keyID string) error

	// TouchLastUsed records that the key was just used.
	TouchLastUsed(ctx context.Context, id string) error
}
