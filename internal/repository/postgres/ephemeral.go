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

const ephemeralColumns = `id, account_id, token_hash, purpose, provider, used, used_at, expires_at, created_at`

// EphemeralTokenRepository implements repository.EphemeralTokenRepository
// using PostgreSQL.
type EphemeralTokenRepository struct {
	db DB
}

// NewEphemeralTokenRepository creates a new PostgreSQL-backed ephemeral token repository.
func NewEphemeralTokenRepository(db DB) *EphemeralTokenRepository {
	return &EphemeralTokenRepository{db: db}
}

// Create inserts a new ephemeral token into the database.
func (r *EphemeralTokenRepository) Create(ctx context.Context, t *domain.EphemeralToken) error {
	query := `
		INSERT INTO ephemeral_tokens (id, account_id, token_hash, purpose, provider, used, used_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		nullIfEmpty(t.AccountID),
		t.TokenHash,
		t.Purpose,
		t.Provider,
		t.Used,
		t.UsedAt,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ephemeral token: %w", err)
	}

	return nil
}

// Redeem marks the matching unused, unexpired token as used in a single
// statement. Two concurrent redemptions of the same token race on the
// used flag and only one wins. Expired tokens are left untouched and
// reported with an expiry error.
func (r *EphemeralTokenRepository) Redeem(ctx context.Context, tokenHash, purpose string) (*domain.EphemeralToken, error) {
	now := time.Now().UTC()
	query := `
		UPDATE ephemeral_tokens
		SET used = true, used_at = $1
		WHERE token_hash = $2 AND purpose = $3 AND used = false AND expires_at > $1
		RETURNING ` + ephemeralColumns

	t, err := scanEphemeralRow(r.db.QueryRow(ctx, query, now, tokenHash, purpose))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("redeem ephemeral token: %w", err)
	}

	// No eligible row. Look the token up to tell an expired token apart
	// from an unknown or already consumed one.
	lookup := `SELECT ` + ephemeralColumns + ` FROM ephemeral_tokens WHERE token_hash = $1 AND purpose = $2`
	t, err = scanEphemeralRow(r.db.QueryRow(ctx, lookup, tokenHash, purpose))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.InvalidToken(purpose)
		}
		return nil, fmt.Errorf("look up ephemeral token: %w", err)
	}
	if !t.Used && t.IsExpiredAt(now) {
		return nil, apperrors.Expired(purpose)
	}
	return nil, apperrors.InvalidToken(purpose)
}

// InvalidateForAccount marks all outstanding tokens of the given purpose for
// the account as used.
func (r *EphemeralTokenRepository) InvalidateForAccount(ctx context.Context, accountID, purpose string) error {
	query := `
		UPDATE ephemeral_tokens
		SET used = true, used_at = $1
		WHERE account_id = $2 AND purpose = $3 AND used = false`

	_, err := r.db.Exec(ctx, query, time.Now().UTC(), accountID, purpose)
	if err != nil {
		return fmt.Errorf("invalidate ephemeral tokens: %w", err)
	}

	return nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (r *EphemeralTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM ephemeral_tokens WHERE expires_at < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired ephemeral tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

func scanEphemeralRow(row pgx.Row) (*domain.EphemeralToken, error) {
	var (
		t         domain.EphemeralToken
		accountID *string
	)
	err := row.Scan(
		&t.ID,
		&accountID,
		&t.TokenHash,
		&t.Purpose,
		&t.Provider,
		&t.Used,
		&t.UsedAt,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID != nil {
		t.AccountID = *accountID
	}
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
