package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/auth/internal/domain"
	apperrors "github.com/finsight/auth/pkg/errors"
)

func newSessionTestFixture(t *testing.T) (*SessionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewSessionRepository(mock)
	return repo, mock
}

func sessionColumnNames() []string {
	return []string{
		"id", "account_id", "access_jti", "refresh_jti", "ip_address", "user_agent",
		"remember_me", "expires_at", "created_at", "last_active_at", "revoked_at",
	}
}

func sessionRows(sessions ...*domain.Session) *pgxmock.Rows {
	rows := pgxmock.NewRows(sessionColumnNames())
	for _, s := range sessions {
		rows.AddRow(
			s.ID, s.AccountID, s.AccessJTI, s.RefreshJTI, s.IPAddress, s.UserAgent,
			s.RememberMe, s.ExpiresAt, s.CreatedAt, s.LastActiveAt, s.RevokedAt,
		)
	}
	return rows
}

func sampleSession() *domain.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Session{
		ID:           "sess-1",
		AccountID:    "acct-1234",
		AccessJTI:    "jti-access-1",
		RefreshJTI:   "jti-refresh-1",
		IPAddress:    "203.0.113.7",
		UserAgent:    "test-agent",
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func TestSessionRepository_Create_Success(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(
			s.ID, s.AccountID, s.AccessJTI, s.RefreshJTI, s.IPAddress, s.UserAgent,
			s.RememberMe, s.ExpiresAt, s.CreatedAt, s.LastActiveAt, s.RevokedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), s)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Revoke_ReturnsSession(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession()
	revoked := *s
	now := time.Now().UTC()
	revoked.RevokedAt = &now

	mock.ExpectQuery("UPDATE sessions").
		WithArgs(pgxmock.AnyArg(), s.ID).
		WillReturnRows(sessionRows(&revoked))

	got, err := repo.Revoke(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())
	assert.Equal(t, s.AccessJTI, got.AccessJTI)
	assert.Equal(t, s.RefreshJTI, got.RefreshJTI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Revoke_NotFound(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE sessions").
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.Revoke(context.Background(), "missing")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeAllForAccount_ReturnsRevokedSessions(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	s1 := sampleSession()
	s1.RevokedAt = &now
	s2 := sampleSession()
	s2.ID = "sess-2"
	s2.AccessJTI = "jti-access-2"
	s2.RefreshJTI = "jti-refresh-2"
	s2.RevokedAt = &now

	mock.ExpectQuery("UPDATE sessions").
		WithArgs(pgxmock.AnyArg(), "acct-1234", "").
		WillReturnRows(sessionRows(s1, s2))

	got, err := repo.RevokeAllForAccount(context.Background(), "acct-1234", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "jti-access-1", got[0].AccessJTI)
	assert.Equal(t, "jti-refresh-2", got[1].RefreshJTI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeAllForAccount_SparesExceptedSession(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	s2 := sampleSession()
	s2.ID = "sess-2"
	s2.AccessJTI = "jti-access-2"
	s2.RefreshJTI = "jti-refresh-2"
	s2.RevokedAt = &now

	mock.ExpectQuery("UPDATE sessions").
		WithArgs(pgxmock.AnyArg(), "acct-1234", "sess-1").
		WillReturnRows(sessionRows(s2))

	got, err := repo.RevokeAllForAccount(context.Background(), "acct-1234", "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sess-2", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeAllForAccount_NoActiveSessions(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE sessions").
		WithArgs(pgxmock.AnyArg(), "acct-1234", "").
		WillReturnRows(sessionRows())

	got, err := repo.RevokeAllForAccount(context.Background(), "acct-1234", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RotateTokens_RevokedSessionNotRotated(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE sessions").
		WithArgs("new-access", "new-refresh", pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.RotateTokens(context.Background(), "sess-1", "new-access", "new-refresh", time.Now().Add(24*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	repo, mock := newSessionTestFixture(t)
	defer mock.Close()

	cutoff := time.Now().UTC()

	mock.ExpectExec("DELETE FROM sessions").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
