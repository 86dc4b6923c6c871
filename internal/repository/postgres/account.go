package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finsight/auth/internal/domain"
	apperrors "github.com/finsight/auth/pkg/errors"
)

const accountColumns = `id, email, username, password_hash, first_name, last_name, role, status, email_verified,
	failed_attempts, locked_until, mfa_enabled, mfa_secret, auth_provider, provider_id,
	last_login_at, created_at, updated_at`

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account into the database.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, username, password_hash, first_name, last_name, role, status, email_verified,
			failed_attempts, locked_until, mfa_enabled, mfa_secret, auth_provider, provider_id,
			last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.Email,
		a.Username,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Role,
		a.Status,
		a.EmailVerified,
		a.FailedAttempts,
		a.LockedUntil,
		a.MFAEnabled,
		a.MFASecret,
		a.AuthProvider,
		a.ProviderID,
		a.LastLoginAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateAccountError(err, a)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// duplicateAccountError maps a unique violation to the column that caused it.
// The constraint name appears in the driver error text.
func duplicateAccountError(err error, a *domain.Account) error {
	if strings.Contains(err.Error(), "username") {
		return apperrors.AlreadyExists("account", "username", a.Username)
	}
	return apperrors.AlreadyExists("account", "email", a.Email)
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(ctx, query, id)
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(ctx, query, email)
}

// GetByUsername retrieves an account by its username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanAccount(ctx, query, username)
}

// GetByProvider retrieves an account by OAuth provider and provider ID.
func (r *AccountRepository) GetByProvider(ctx context.Context, provider, providerID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE auth_provider = $1 AND provider_id = $2`
	return r.scanAccount(ctx, query, provider, providerID)
}

// Update modifies an existing account in the database.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) error {
	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET email = $1, username = $2, password_hash = $3, first_name = $4, last_name = $5, role = $6,
		    status = $7, email_verified = $8, mfa_enabled = $9, mfa_secret = $10,
		    auth_provider = $11, provider_id = $12, last_login_at = $13, updated_at = $14
		WHERE id = $15`

	ct, err := r.db.Exec(ctx, query,
		a.Email,
		a.Username,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Role,
		a.Status,
		a.EmailVerified,
		a.MFAEnabled,
		a.MFASecret,
		a.AuthProvider,
		a.ProviderID,
		a.LastLoginAt,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateAccountError(err, a)
		}
		return fmt.Errorf("update account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", a.ID)
	}

	return nil
}

// IncrementFailedAttempts bumps the failed login counter in a single
// statement so concurrent failures each observe a distinct count.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1, updated_at = $1
		WHERE id = $2
		RETURNING failed_attempts`

	var attempts int
	err := r.db.QueryRow(ctx, query, time.Now().UTC(), id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, nil
}

// Lock sets the lockout deadline on the account and flips it to locked.
func (r *AccountRepository) Lock(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE accounts SET locked_until = $1, status = $2, updated_at = $3 WHERE id = $4`

	ct, err := r.db.Exec(ctx, query, until, domain.StatusLocked, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// ResetLockout clears the failed attempt counter and any lockout deadline,
// restoring a locked account to active. Inactive accounts keep their status.
func (r *AccountRepository) ResetLockout(ctx context.Context, id string) error {
	query := `UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL,
			status = CASE WHEN status = $1 THEN $2 ELSE status END,
			updated_at = $3
		WHERE id = $4`

	ct, err := r.db.Exec(ctx, query, domain.StatusLocked, domain.StatusActive, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// scanAccount is a helper that executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.Role,
		&a.Status,
		&a.EmailVerified,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.MFAEnabled,
		&a.MFASecret,
		&a.AuthProvider,
		&a.ProviderID,
		&a.LastLoginAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &a, nil
}
