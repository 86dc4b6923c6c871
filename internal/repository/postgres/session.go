package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finsight/auth/internal/domain"
	apperrors "github.com/finsight/auth/pkg/errors"
)

const sessionColumns = `id, account_id, access_jti, refresh_jti, ip_address, user_agent,
	remember_me, expires_at, created_at, last_active_at, revoked_at`

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session into the database.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, access_jti, refresh_jti, ip_address, user_agent,
			remember_me, expires_at, created_at, last_active_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.AccountID,
		s.AccessJTI,
		s.RefreshJTI,
		s.IPAddress,
		s.UserAgent,
		s.RememberMe,
		s.ExpiresAt,
		s.CreatedAt,
		s.LastActiveAt,
		s.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSessionRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return s, nil
}

// ListActiveByAccount returns all unrevoked, unexpired sessions for the
// account, most recently active first.
func (r *SessionRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY last_active_at DESC`

	rows, err := r.db.Query(ctx, query, accountID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// RotateTokens swaps the session's token identifiers after a refresh.
func (r *SessionRepository) RotateTokens(ctx context.Context, sessionID, accessJTI, refreshJTI string, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET access_jti = $1, refresh_jti = $2, expires_at = $3, last_active_at = $4
		WHERE id = $5 AND revoked_at IS NULL`

	ct, err := r.db.Exec(ctx, query, accessJTI, refreshJTI, expiresAt, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("rotate session tokens: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("session", sessionID)
	}

	return nil
}

// Revoke marks the session revoked and returns it. Revoking an already
// revoked session is a no-op that still returns the session.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $1)
		WHERE id = $2
		RETURNING ` + sessionColumns

	s, err := scanSessionRow(r.db.QueryRow(ctx, query, time.Now().UTC(), sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("revoke session: %w", err)
	}

	return s, nil
}

// RevokeAllForAccount revokes every active session for the account, skipping
// exceptSessionID when non-empty, and returns the revoked sessions.
func (r *SessionRepository) RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID string) ([]domain.Session, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $1
		WHERE account_id = $2 AND revoked_at IS NULL AND ($3 = '' OR id::text <> $3)
		RETURNING ` + sessionColumns

	rows, err := r.db.Query(ctx, query, time.Now().UTC(), accountID, exceptSessionID)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions for account: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// DeleteExpired removes sessions whose lifetime elapsed before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

func scanSessionRow(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.AccessJTI,
		&s.RefreshJTI,
		&s.IPAddress,
		&s.UserAgent,
		&s.RememberMe,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.LastActiveAt,
		&s.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}
