package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/finsight/auth/internal/domain"
	pkgkafka "github.com/finsight/auth/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicSecurity               = "finsight.auth.security"
	TopicVerificationRequested  = "finsight.auth.verification_requested"
	TopicPasswordResetRequested = "finsight.auth.password_reset_requested"
	TopicLoginAlert             = "finsight.auth.login_alert"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// SecurityEventData is the payload for a security audit event.
type SecurityEventData struct {
	AccountID string          `json:"account_id,omitempty"`
	EventType string          `json:"event_type"`
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// EmailTokenData is the payload for verification and password reset events.
// The notification service turns it into an email carrying the token link.
type EmailTokenData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// LoginAlertData is the payload for a login-from-new-location alert.
type LoginAlertData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSecurityEvent fans an audit event out to the security topic.
func (p *Producer) PublishSecurityEvent(ctx context.Context, e *domain.AuditEvent) error {
	data := SecurityEventData{
		AccountID: e.AccountID,
		EventType: e.EventType,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		Details:   e.Details,
	}

	aggregateID := e.AccountID
	if aggregateID == "" {
		aggregateID = e.ID
	}

	event, err := pkgkafka.NewEvent(e.EventType, aggregateID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create security event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSecurity, event); err != nil {
		return fmt.Errorf("publish security event: %w", err)
	}

	return nil
}

// PublishVerificationRequested asks the notification service to send an
// email verification message.
func (p *Producer) PublishVerificationRequested(ctx context.Context, accountID, email, token string, expiresIn int64) error {
	return p.publishEmailToken(ctx, TopicVerificationRequested, accountID, email, token, expiresIn)
}

// PublishPasswordResetRequested asks the notification service to send a
// password reset message.
func (p *Producer) PublishPasswordResetRequested(ctx context.Context, accountID, email, token string, expiresIn int64) error {
	return p.publishEmailToken(ctx, TopicPasswordResetRequested, accountID, email, token, expiresIn)
}

// PublishLoginAlert notifies the account owner of a login from a location
// with no successful login on record.
func (p *Producer) PublishLoginAlert(ctx context.Context, accountID, email, ipAddress, userAgent string) error {
	data := LoginAlertData{
		AccountID: accountID,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	event, err := pkgkafka.NewEvent(TopicLoginAlert, accountID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create login alert event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicLoginAlert, event); err != nil {
		return fmt.Errorf("publish login alert event: %w", err)
	}

	p.logger.DebugContext(ctx, "published login alert",
		slog.String("account_id", accountID),
		slog.String("ip_address", ipAddress),
	)

	return nil
}

func (p *Producer) publishEmailToken(ctx context.Context, topic, accountID, email, token string, expiresIn int64) error {
	data := EmailTokenData{
		AccountID: accountID,
		Email:     email,
		Token:     token,
		ExpiresIn: expiresIn,
	}

	event, err := pkgkafka.NewEvent(topic, accountID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	return nil
}
