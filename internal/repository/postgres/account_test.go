package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/auth/internal/domain"
	apperrors "github.com/finsight/auth/pkg/errors"
)

func newAccountTestFixture(t *testing.T) (*AccountRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewAccountRepository(mock)
	return repo, mock
}

func sampleAccount() *domain.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Account{
		ID:            "acct-1234",
		Email:         "alice@example.com",
		Username:      "alice",
		PasswordHash:  "$2a$10$hash",
		FirstName:     "Alice",
		LastName:      "Smith",
		Role:          domain.RoleUser,
		Status:        domain.StatusActive,
		EmailVerified: true,
		AuthProvider:  domain.ProviderLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func accountColumnNames() []string {
	return []string{
		"id", "email", "username", "password_hash", "first_name", "last_name", "role", "status", "email_verified",
		"failed_attempts", "locked_until", "mfa_enabled", "mfa_secret", "auth_provider", "provider_id",
		"last_login_at", "created_at", "updated_at",
	}
}

func accountRow(a *domain.Account) *pgxmock.Rows {
	return pgxmock.NewRows(accountColumnNames()).AddRow(
		a.ID, a.Email, a.Username, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.Status, a.EmailVerified,
		a.FailedAttempts, a.LockedUntil, a.MFAEnabled, a.MFASecret, a.AuthProvider, a.ProviderID,
		a.LastLoginAt, a.CreatedAt, a.UpdatedAt,
	)
}

func TestAccountRepository_Create_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(
			a.ID, a.Email, a.Username, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.Status, a.EmailVerified,
			a.FailedAttempts, a.LockedUntil, a.MFAEnabled, a.MFASecret, a.AuthProvider, a.ProviderID,
			a.LastLoginAt, a.CreatedAt, a.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(
			a.ID, a.Email, a.Username, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.Status, a.EmailVerified,
			a.FailedAttempts, a.LockedUntil, a.MFAEnabled, a.MFASecret, a.AuthProvider, a.ProviderID,
			a.LastLoginAt, a.CreatedAt, a.UpdatedAt,
		).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmail_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE email =").
		WithArgs(a.Email).
		WillReturnRows(accountRow(a))

	got, err := repo.GetByEmail(context.Background(), a.Email)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Email, got.Email)
	assert.Equal(t, a.Status, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE email =").
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_DuplicateUsername(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(
			a.ID, a.Email, a.Username, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.Status, a.EmailVerified,
			a.FailedAttempts, a.LockedUntil, a.MFAEnabled, a.MFASecret, a.AuthProvider, a.ProviderID,
			a.LastLoginAt, a.CreatedAt, a.UpdatedAt,
		).
		WillReturnError(fmt.Errorf(`ERROR: duplicate key value violates unique constraint "accounts_username_key" (SQLSTATE 23505)`))

	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Contains(t, err.Error(), "username")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByUsername_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE username =").
		WithArgs(a.Username).
		WillReturnRows(accountRow(a))

	got, err := repo.GetByUsername(context.Background(), a.Username)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Username, got.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByProvider_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()
	a.AuthProvider = domain.ProviderGoogle
	a.ProviderID = "google-123"

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE auth_provider =").
		WithArgs(domain.ProviderGoogle, "google-123").
		WillReturnRows(accountRow(a))

	got, err := repo.GetByProvider(context.Background(), domain.ProviderGoogle, "google-123")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_IncrementFailedAttempts_ReturnsNewCount(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE accounts").
		WithArgs(pgxmock.AnyArg(), "acct-1234").
		WillReturnRows(pgxmock.NewRows([]string{"failed_attempts"}).AddRow(3))

	attempts, err := repo.IncrementFailedAttempts(context.Background(), "acct-1234")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_IncrementFailedAttempts_NotFound(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE accounts").
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.IncrementFailedAttempts(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Lock_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	until := time.Now().UTC().Add(30 * time.Minute)

	mock.ExpectExec("UPDATE accounts SET locked_until").
		WithArgs(until, domain.StatusLocked, pgxmock.AnyArg(), "acct-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Lock(context.Background(), "acct-1234", until)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ResetLockout_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE accounts").
		WithArgs(domain.StatusLocked, domain.StatusActive, pgxmock.AnyArg(), "acct-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ResetLockout(context.Background(), "acct-1234")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Update_NotFound(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	defer mock.Close()

	a := sampleAccount()

	mock.ExpectExec("UPDATE accounts").
		WithArgs(
			a.Email, a.Username, a.PasswordHash, a.FirstName, a.LastName, a.Role,
			a.Status, a.EmailVerified, a.MFAEnabled, a.MFASecret,
			a.AuthProvider, a.ProviderID, a.LastLoginAt,
			pgxmock.AnyArg(), // updated_at
			a.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
