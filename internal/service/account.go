package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/event"
	"github.com/finsight/auth/internal/repository"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// NormalizeEmail canonicalizes an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LockoutPolicy holds the configured lockout thresholds.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// AccountService implements registration, login and credential management.
type AccountService struct {
	accountRepo repository.AccountRepository
	sessions    *SessionService
	mfa         *MFAService
	audit       *AuditService
	producer    *event.Producer
	policy      PasswordPolicy
	lockout     LockoutPolicy
	logger      *slog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(
	accountRepo repository.AccountRepository,
	sessions *SessionService,
	mfa *MFAService,
	audit *AuditService,
	producer *event.Producer,
	policy PasswordPolicy,
	lockout LockoutPolicy,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		sessions:    sessions,
		mfa:         mfa,
		audit:       audit,
		producer:    producer,
		policy:      policy,
		lockout:     lockout,
		logger:      logger,
	}
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds the parameters for a login attempt. MFACode is required
// only when the account has MFA enabled.
type LoginInput struct {
	Email      string
	Password   string
	MFACode    string
	RememberMe bool
}

// AuthResult is the outcome of a successful authentication step. When
// MFARequired is set the credentials were correct but no tokens are issued
// until the client retries with a code.
type AuthResult struct {
	Account     *domain.Account
	Session     *domain.Session
	Tokens      *domain.TokenPair
	MFARequired bool
	NewLocation bool
}

// Register creates a new account with local credentials.
func (s *AccountService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*domain.Account, error) {
	input.Email = NormalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if input.FirstName == "" {
		return nil, apperrors.InvalidInput("first name is required")
	}
	if input.LastName == "" {
		return nil, apperrors.InvalidInput("last name is required")
	}
	if err := s.policy.Validate(input.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.New().String(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: string(hashedPassword),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		AuthProvider: domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.audit.Record(ctx, account.ID, domain.AuditAccountCreated, meta, nil)

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return account, nil
}

// Authenticate runs the login state machine. Lockout is checked before the
// password so a locked account leaks nothing about credential validity, and
// failed attempts are counted atomically so concurrent failures cannot
// bypass the threshold.
func (s *AccountService) Authenticate(ctx context.Context, input LoginInput, meta RequestMeta) (*AuthResult, error) {
	input.Email = NormalizeEmail(input.Email)
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	account, err := s.accountRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		// Same response as a wrong password so the caller cannot probe
		// which emails are registered.
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	now := time.Now().UTC()

	if account.IsLockedAt(now) {
		s.audit.Record(ctx, account.ID, domain.AuditLoginBlocked, meta, map[string]any{
			"locked_until": account.LockedUntil.Format(time.RFC3339),
		})
		return nil, apperrors.AccountLocked()
	}

	if !account.IsActive() {
		s.audit.Record(ctx, account.ID, domain.AuditLoginBlocked, meta, map[string]any{
			"status": account.Status,
		})
		return nil, apperrors.AccountInactive()
	}

	if !account.HasPassword() {
		// OAuth-only accounts have no local password to check.
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		return nil, s.recordFailedAttempt(ctx, account, meta)
	}

	if account.MFAEnabled {
		if input.MFACode == "" {
			return &AuthResult{Account: account, MFARequired: true}, nil
		}
		if err := s.mfa.VerifyCode(ctx, account, input.MFACode, false); err != nil {
			s.audit.Record(ctx, account.ID, domain.AuditMFAFailed, meta, nil)
			return nil, s.recordFailedAttempt(ctx, account, meta)
		}
	}

	if err := s.accountRepo.ResetLockout(ctx, account.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to reset lockout counters",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	newLocation, err := s.audit.IsNewLocation(ctx, account.ID, meta.IPAddress)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check login location",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		newLocation = false
	}

	session, tokens, err := s.sessions.Create(ctx, account, meta, input.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	account.LastLoginAt = &now
	if err := s.accountRepo.Update(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to record last login",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.Record(ctx, account.ID, domain.AuditLoginSuccess, meta, map[string]any{
		"session_id":   session.ID,
		"remember_me":  input.RememberMe,
		"new_location": newLocation,
	})

	if newLocation {
		// Fire and forget: the login itself does not depend on the alert
		// reaching the notification pipeline.
		if err := s.producer.PublishLoginAlert(ctx, account.ID, account.Email, meta.IPAddress, meta.UserAgent); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish login alert",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("account_id", account.ID),
		slog.String("session_id", session.ID),
	)

	return &AuthResult{
		Account:     account,
		Session:     session,
		Tokens:      tokens,
		NewLocation: newLocation,
	}, nil
}

// recordFailedAttempt bumps the attempt counter, locks the account when the
// threshold is hit, and returns the error the caller should surface.
func (s *AccountService) recordFailedAttempt(ctx context.Context, account *domain.Account, meta RequestMeta) error {
	attempts, err := s.accountRepo.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to count login attempt",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return apperrors.Unauthorized("invalid email or password")
	}

	if attempts >= s.lockout.MaxAttempts {
		until := time.Now().UTC().Add(s.lockout.Duration)
		if err := s.accountRepo.Lock(ctx, account.ID, until); err != nil {
			s.logger.ErrorContext(ctx, "failed to lock account",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.audit.Record(ctx, account.ID, domain.AuditAccountLocked, meta, map[string]any{
				"attempts":     attempts,
				"locked_until": until.Format(time.RFC3339),
			})
			return apperrors.AccountLocked()
		}
	}

	s.audit.Record(ctx, account.ID, domain.AuditLoginFailed, meta, map[string]any{
		"attempts": attempts,
	})

	return apperrors.Unauthorized("invalid email or password")
}

// Get returns an account by ID.
func (s *AccountService) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ChangePassword changes the password of an authenticated account and closes
// every session except the one the change was made from, so the caller stays
// logged in while any other holder of the old credentials is cut off.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, sessionID, currentPassword, newPassword string, meta RequestMeta) error {
	if currentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for password change: %w", err)
	}

	if !account.HasPassword() {
		return apperrors.InvalidInput("account has no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(currentPassword)); err != nil {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	account.PasswordHash = string(hashedPassword)
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account password: %w", err)
	}

	if _, err := s.sessions.RevokeAll(ctx, account.ID, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions after password change",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.Record(ctx, account.ID, domain.AuditPasswordChanged, meta, nil)

	s.logger.InfoContext(ctx, "password changed",
		slog.String("account_id", account.ID),
	)

	return nil
}

// SetRole changes an account's role. Only admins reach this through the
// router guard.
func (s *AccountService) SetRole(ctx context.Context, actorID, accountID, role string, meta RequestMeta) (*domain.Account, error) {
	if !domain.IsValidRole(role) {
		return nil, apperrors.InvalidInput("invalid role")
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account for role change: %w", err)
	}

	previous := account.Role
	if previous == role {
		return account, nil
	}

	account.Role = role
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("update account role: %w", err)
	}

	s.audit.Record(ctx, account.ID, domain.AuditRoleChanged, meta, map[string]any{
		"actor_id": actorID,
		"from":     previous,
		"to":       role,
	})

	s.logger.InfoContext(ctx, "role changed",
		slog.String("account_id", account.ID),
		slog.String("actor_id", actorID),
		slog.String("role", role),
	)

	return account, nil
}

// Deactivate disables an account and closes all of its sessions.
func (s *AccountService) Deactivate(ctx context.Context, accountID string, meta RequestMeta) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for deactivation: %w", err)
	}

	account.Status = domain.StatusInactive
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}

	if _, err := s.sessions.RevokeAll(ctx, account.ID, ""); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions after deactivation",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.Record(ctx, account.ID, domain.AuditSessionRevoked, meta, map[string]any{
		"reason": "account_deactivated",
	})

	return nil
}
