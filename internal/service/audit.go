package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/event"
	"github.com/finsight/auth/internal/repository"
)

// Suspicious-activity thresholds.
const (
	failedLoginThreshold = 3
	failedLoginWindow    = time.Hour
	knownLocationWindow  = 7 * 24 * time.Hour
)

// AuditService records the security audit trail. Recording is best effort
// from the caller's point of view: a failed write is logged and swallowed so
// an audit problem never breaks an authentication flow.
type AuditService struct {
	auditRepo repository.AuditRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewAuditService creates a new audit service.
func NewAuditService(auditRepo repository.AuditRepository, producer *event.Producer, logger *slog.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		producer:  producer,
		logger:    logger,
	}
}

// RequestMeta carries the request attribution recorded with each event.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Record writes an audit event and fans it out to the security topic. It
// never returns an error.
func (s *AuditService) Record(ctx context.Context, accountID, eventType string, meta RequestMeta, details map[string]any) {
	var payload json.RawMessage
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to marshal audit details",
				slog.String("event_type", eventType),
				slog.String("error", err.Error()),
			)
		} else {
			payload = b
		}
	}

	e := &domain.AuditEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		EventType: eventType,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.auditRepo.Create(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to record audit event",
			slog.String("event_type", eventType),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishSecurityEvent(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish security event",
			slog.String("event_type", eventType),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// ListEvents returns the account's audit trail, newest first.
func (s *AuditService) ListEvents(ctx context.Context, accountID string, limit, offset int) ([]domain.AuditEvent, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.auditRepo.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	return events, nil
}

// ListAllEvents returns events across every account, newest first. A
// non-empty eventType restricts the listing.
func (s *AuditService) ListAllEvents(ctx context.Context, eventType string, limit, offset int) ([]domain.AuditEvent, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.auditRepo.ListAll(ctx, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list all audit events: %w", err)
	}

	return events, nil
}

// CheckSuspicious evaluates the account's recent trail. Repeated failures
// means three or more failed logins inside the last hour. A new location is
// an IP with no successful login in the last seven days.
func (s *AuditService) CheckSuspicious(ctx context.Context, accountID, ipAddress string) (*domain.SuspicionReport, error) {
	now := time.Now().UTC()
	report := &domain.SuspicionReport{AccountID: accountID}

	failed, err := s.auditRepo.CountFailedLoginsSince(ctx, accountID, now.Add(-failedLoginWindow))
	if err != nil {
		return nil, fmt.Errorf("count recent failed logins: %w", err)
	}
	report.FailedCount = failed
	if failed >= failedLoginThreshold {
		report.Suspicious = true
		report.Reasons = append(report.Reasons, domain.SuspicionRepeatedFailures)
	}

	if ipAddress != "" {
		newLocation, err := s.isNewLocation(ctx, accountID, ipAddress, now)
		if err != nil {
			return nil, err
		}
		if newLocation {
			report.Suspicious = true
			report.Reasons = append(report.Reasons, domain.SuspicionNewLocation)
		}
	}

	return report, nil
}

// IsNewLocation reports whether the IP has no successful login on record for
// the account inside the location window. An account with no successful
// login at all is never flagged: every IP is new until a first location
// exists to compare against.
func (s *AuditService) IsNewLocation(ctx context.Context, accountID, ipAddress string) (bool, error) {
	if ipAddress == "" {
		return false, nil
	}

	return s.isNewLocation(ctx, accountID, ipAddress, time.Now().UTC())
}

func (s *AuditService) isNewLocation(ctx context.Context, accountID, ipAddress string, now time.Time) (bool, error) {
	since := now.Add(-knownLocationWindow)

	known, err := s.auditRepo.HasSuccessFromIP(ctx, accountID, ipAddress, since)
	if err != nil {
		return false, fmt.Errorf("check known location: %w", err)
	}
	if known {
		return false, nil
	}

	hasHistory, err := s.auditRepo.HasAnySuccessSince(ctx, accountID, since)
	if err != nil {
		return false, fmt.Errorf("check login history: %w", err)
	}

	return hasHistory, nil
}

// CleanupOld removes audit events older than the retention window and
// returns how many were removed.
func (s *AuditService) CleanupOld(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.auditRepo.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup old audit events: %w", err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "old audit events removed", slog.Int64("count", n))
	}

	return n, nil
}
