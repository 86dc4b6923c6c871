package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/event"
	"github.com/finsight/auth/internal/repository"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// TokenTTLs holds the configured lifetimes per token purpose.
type TokenTTLs struct {
	EmailVerification time.Duration
	PasswordReset     time.Duration
	OAuthState        time.Duration
}

// TokenService issues and redeems single-use tokens for email verification,
// password reset and OAuth state. Only a SHA-256 digest of each token is
// stored; redemption is a compare-and-set so concurrent redemptions of the
// same token cannot both succeed.
type TokenService struct {
	tokenRepo   repository.EphemeralTokenRepository
	accountRepo repository.AccountRepository
	sessions    *SessionService
	audit       *AuditService
	producer    *event.Producer
	policy      PasswordPolicy
	ttls        TokenTTLs
	logger      *slog.Logger
}

// NewTokenService creates a new ephemeral token service.
func NewTokenService(
	tokenRepo repository.EphemeralTokenRepository,
	accountRepo repository.AccountRepository,
	sessions *SessionService,
	audit *AuditService,
	producer *event.Producer,
	policy PasswordPolicy,
	ttls TokenTTLs,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		tokenRepo:   tokenRepo,
		accountRepo: accountRepo,
		sessions:    sessions,
		audit:       audit,
		producer:    producer,
		policy:      policy,
		ttls:        ttls,
		logger:      logger,
	}
}

// RequestEmailVerification issues a fresh verification token for the account
// and hands it to the notification pipeline. Any earlier verification tokens
// stop working.
func (s *TokenService) RequestEmailVerification(ctx context.Context, accountID string) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for verification: %w", err)
	}
	if account.EmailVerified {
		return apperrors.Conflict("email is already verified")
	}

	if err := s.tokenRepo.InvalidateForAccount(ctx, account.ID, domain.PurposeEmailVerification); err != nil {
		return fmt.Errorf("invalidate old verification tokens: %w", err)
	}

	token, err := s.issue(ctx, account.ID, domain.PurposeEmailVerification, "", s.ttls.EmailVerification)
	if err != nil {
		return err
	}

	if err := s.producer.PublishVerificationRequested(ctx, account.ID, account.Email, token, int64(s.ttls.EmailVerification.Seconds())); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish verification request",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// VerifyEmail redeems a verification token and marks the account verified.
func (s *TokenService) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (*domain.Account, error) {
	redeemed, err := s.tokenRepo.Redeem(ctx, hashToken(token), domain.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByID(ctx, redeemed.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account for verification: %w", err)
	}

	if !account.EmailVerified {
		account.EmailVerified = true
		if err := s.accountRepo.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("mark email verified: %w", err)
		}
	}

	s.audit.Record(ctx, account.ID, domain.AuditEmailVerified, meta, nil)

	s.logger.InfoContext(ctx, "email verified",
		slog.String("account_id", account.ID),
	)

	return account, nil
}

// RequestPasswordReset issues a reset token for the email's account. Unknown
// emails are treated the same as known ones so the endpoint cannot be used
// to probe registrations.
func (s *TokenService) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.InfoContext(ctx, "password reset requested for unknown email",
			slog.String("email", email),
		)
		return nil
	}

	// Outstanding reset tokens stop working so only the newest link in the
	// user's inbox is live.
	if err := s.tokenRepo.InvalidateForAccount(ctx, account.ID, domain.PurposePasswordReset); err != nil {
		return fmt.Errorf("invalidate old reset tokens: %w", err)
	}

	token, err := s.issue(ctx, account.ID, domain.PurposePasswordReset, "", s.ttls.PasswordReset)
	if err != nil {
		return err
	}

	if err := s.producer.PublishPasswordResetRequested(ctx, account.ID, account.Email, token, int64(s.ttls.PasswordReset.Seconds())); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password reset request",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("account_id", account.ID),
	)

	return nil
}

// ResetPassword redeems a reset token, replaces the password and closes
// every session the account has open anywhere.
func (s *TokenService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	redeemed, err := s.tokenRepo.Redeem(ctx, hashToken(token), domain.PurposePasswordReset)
	if err != nil {
		return err
	}

	account, err := s.accountRepo.GetByID(ctx, redeemed.AccountID)
	if err != nil {
		return fmt.Errorf("get account for password reset: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	account.PasswordHash = string(hashedPassword)
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account password: %w", err)
	}

	if err := s.accountRepo.ResetLockout(ctx, account.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to reset lockout after password reset",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	// A reset usually means the old credentials are suspect. Everything
	// issued before this point stops working.
	if _, err := s.sessions.RevokeAll(ctx, account.ID, ""); err != nil {
		return fmt.Errorf("revoke sessions after password reset: %w", err)
	}

	s.audit.Record(ctx, account.ID, domain.AuditPasswordReset, meta, nil)

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", account.ID),
	)

	return nil
}

// IssueOAuthState mints the anti-forgery state for an authorization
// redirect.
func (s *TokenService) IssueOAuthState(ctx context.Context, provider string) (string, error) {
	return s.issue(ctx, "", domain.PurposeOAuthState, provider, s.ttls.OAuthState)
}

// RedeemOAuthState consumes a state token on callback. The provider must
// match the one the state was minted for.
func (s *TokenService) RedeemOAuthState(ctx context.Context, state, provider string) error {
	redeemed, err := s.tokenRepo.Redeem(ctx, hashToken(state), domain.PurposeOAuthState)
	if err != nil {
		return err
	}
	if redeemed.Provider != provider {
		return apperrors.InvalidToken("oauth state")
	}
	return nil
}

// CleanupExpired removes ephemeral tokens past their lifetime.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.tokenRepo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "expired ephemeral tokens removed", slog.Int64("count", n))
	}

	return n, nil
}

func (s *TokenService) issue(ctx context.Context, accountID, purpose, provider string, ttl time.Duration) (string, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	record := &domain.EphemeralToken{
		ID:        uuid.New().String(),
		AccountID: accountID,
		TokenHash: hashToken(token),
		Purpose:   purpose,
		Provider:  provider,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}

	return token, nil
}

// newOpaqueToken returns a 32-byte random token in URL-safe encoding.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken returns the SHA256 hex digest of the given token string.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
