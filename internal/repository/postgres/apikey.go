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

const apiKeyColumns = `id, account_id, name, prefix, key_hash, lookup_hash, scopes,
	last_used_at, expires_at, revoked_at, created_at`

// APIKeyRepository implements repository.APIKeyRepository using PostgreSQL.
type APIKeyRepository struct {
	db DB
}

// NewAPIKeyRepository creates a new PostgreSQL-backed API key repository.
func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key into the database.
func (r *APIKeyRepository) Create(ctx context.Context, k *domain.APIKey) error {
	query := `
		INSERT INTO api_keys (id, account_id, name, prefix, key_hash, lookup_hash, scopes,
			last_used_at, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		k.ID,
		k.AccountID,
		k.Name,
		k.Prefix,
		k.KeyHash,
		k.LookupHash,
		k.Scopes,
		k.LastUsedAt,
		k.ExpiresAt,
		k.RevokedAt,
		k.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("api key", "name", k.Name)
		}
		return fmt.Errorf("insert api key: %w", err)
	}

	return nil
}

// GetByLookupHash retrieves a key by its deterministic lookup hash.
func (r *APIKeyRepository) GetByLookupHash(ctx context.Context, lookupHash string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE lookup_hash = $1`

	k, err := scanAPIKeyRow(r.db.QueryRow(ctx, query, lookupHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}

	return k, nil
}

// ListByAccount returns all keys belonging to the account, newest first.
func (r *APIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}

	return keys, nil
}

// Revoke marks the key revoked. The account predicate stops one account from
// revoking another account's key.
func (r *APIKeyRepository) Revoke(ctx context.Context, accountID, keyID string) error {
	query := `UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND account_id = $3 AND revoked_at IS NULL`

	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), keyID, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("api key", keyID)
	}

	return nil
}

// TouchLastUsed records that the key was just used.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	_, err := r.db.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}

	return nil
}

func scanAPIKeyRow(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(
		&k.ID,
		&k.AccountID,
		&k.Name,
		&k.Prefix,
		&k.KeyHash,
		&k.LookupHash,
		&k.Scopes,
		&k.LastUsedAt,
		&k.ExpiresAt,
		&k.RevokedAt,
		&k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
