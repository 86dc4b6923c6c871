package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finsight/auth/internal/domain"
)

// AuditRepository implements repository.AuditRepository using PostgreSQL.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new PostgreSQL-backed audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit event into the database.
func (r *AuditRepository) Create(ctx context.Context, e *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, account_id, event_type, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		e.ID,
		nullIfEmpty(e.AccountID),
		e.EventType,
		e.IPAddress,
		e.UserAgent,
		e.Details,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// ListByAccount returns the account's events, newest first.
func (r *AuditRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, account_id, event_type, ip_address, user_agent, details, created_at
		FROM audit_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e         domain.AuditEvent
			accountID *string
		)
		if err := rows.Scan(&e.ID, &accountID, &e.EventType, &e.IPAddress, &e.UserAgent, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		if accountID != nil {
			e.AccountID = *accountID
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	return events, nil
}

// ListAll returns events across all accounts, newest first. A non-empty
// eventType restricts the listing to that type.
func (r *AuditRepository) ListAll(ctx context.Context, eventType string, limit, offset int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, account_id, event_type, ip_address, user_agent, details, created_at
		FROM audit_events
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list all audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e         domain.AuditEvent
			accountID *string
		)
		if err := rows.Scan(&e.ID, &accountID, &e.EventType, &e.IPAddress, &e.UserAgent, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		if accountID != nil {
			e.AccountID = *accountID
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	return events, nil
}

// CountFailedLoginsSince counts failed login events for the account recorded
// at or after the cutoff.
func (r *AuditRepository) CountFailedLoginsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_events
		WHERE account_id = $1 AND event_type = $2 AND created_at >= $3`

	var count int
	err := r.db.QueryRow(ctx, query, accountID, domain.AuditLoginFailed, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}

	return count, nil
}

// HasSuccessFromIP reports whether the account has a successful login from
// the given IP at or after the cutoff.
func (r *AuditRepository) HasSuccessFromIP(ctx context.Context, accountID, ipAddress string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM audit_events
			WHERE account_id = $1 AND event_type = $2 AND ip_address = $3 AND created_at >= $4
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, accountID, domain.AuditLoginSuccess, ipAddress, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check login from ip: %w", err)
	}

	return exists, nil
}

// HasAnySuccessSince reports whether the account has any successful login at
// or after the cutoff, from any IP.
func (r *AuditRepository) HasAnySuccessSince(ctx context.Context, accountID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM audit_events
			WHERE account_id = $1 AND event_type = $2 AND created_at >= $3
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, accountID, domain.AuditLoginSuccess, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check login history: %w", err)
	}

	return exists, nil
}

// DeleteOlderThan removes events recorded before the cutoff.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_events WHERE created_at < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit events: %w", err)
	}

	return ct.RowsAffected(), nil
}
