package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/auth/internal/domain"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// BackupCodeRepository implements repository.BackupCodeRepository using
// PostgreSQL.
type BackupCodeRepository struct {
	db DB
}

// NewBackupCodeRepository creates a new PostgreSQL-backed backup code repository.
func NewBackupCodeRepository(db DB) *BackupCodeRepository {
	return &BackupCodeRepository{db: db}
}

// Replace swaps the account's backup codes for a new set inside one
// transaction, so readers never observe a partial set.
func (r *BackupCodeRepository) Replace(ctx context.Context, accountID string, codeHashes []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete old backup codes: %w", err)
	}

	now := time.Now().UTC()
	for _, hash := range codeHashes {
		_, err := tx.Exec(ctx,
			`INSERT INTO backup_codes (id, account_id, code_hash, used, used_at, created_at)
			 VALUES ($1, $2, $3, false, NULL, $4)`,
			uuid.New().String(), accountID, hash, now,
		)
		if err != nil {
			return fmt.Errorf("insert backup code: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ListUnused returns the account's unused backup codes.
func (r *BackupCodeRepository) ListUnused(ctx context.Context, accountID string) ([]domain.BackupCode, error) {
	query := `
		SELECT id, account_id, code_hash, used, used_at, created_at
		FROM backup_codes
		WHERE account_id = $1 AND used = false
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var c domain.BackupCode
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CodeHash, &c.Used, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup code row: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup code rows: %w", err)
	}
	if codes == nil {
		codes = []domain.BackupCode{}
	}

	return codes, nil
}

// MarkUsed consumes a backup code. The used guard in the predicate means a
// concurrent consumer of the same code loses and gets ErrNotFound.
func (r *BackupCodeRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE backup_codes SET used = true, used_at = $1 WHERE id = $2 AND used = false`

	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark backup code used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// DeleteForAccount removes all backup codes for the account.
func (r *BackupCodeRepository) DeleteForAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM backup_codes WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	return nil
}
