package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/oauth"
	"github.com/finsight/auth/internal/repository"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// OAuthService runs the authorization-code flow and resolves provider
// identities onto local accounts.
type OAuthService struct {
	providers   *oauth.Registry
	accountRepo repository.AccountRepository
	sessions    *SessionService
	tokens      *TokenService
	audit       *AuditService
	logger      *slog.Logger
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(
	providers *oauth.Registry,
	accountRepo repository.AccountRepository,
	sessions *SessionService,
	tokens *TokenService,
	audit *AuditService,
	logger *slog.Logger,
) *OAuthService {
	return &OAuthService{
		providers:   providers,
		accountRepo: accountRepo,
		sessions:    sessions,
		tokens:      tokens,
		audit:       audit,
		logger:      logger,
	}
}

// BeginAuth mints a state token and returns the provider's authorization
// URL.
func (s *OAuthService) BeginAuth(ctx context.Context, providerName string) (string, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return "", apperrors.InvalidInput(err.Error())
	}

	state, err := s.tokens.IssueOAuthState(ctx, providerName)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}

	return provider.AuthCodeURL(state), nil
}

// HandleCallback completes the flow: the state is consumed, the code is
// exchanged, the identity is resolved onto an account and a session opens.
func (s *OAuthService) HandleCallback(ctx context.Context, providerName, code, state string, meta RequestMeta) (*AuthResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if code == "" {
		return nil, apperrors.InvalidInput("authorization code is required")
	}

	if err := s.tokens.RedeemOAuthState(ctx, state, providerName); err != nil {
		return nil, err
	}

	identity, err := provider.Exchange(ctx, code)
	if err != nil {
		s.logger.ErrorContext(ctx, "oauth code exchange failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Unauthorized("authentication with provider failed")
	}

	account, created, err := s.resolveIdentity(ctx, identity, meta)
	if err != nil {
		return nil, err
	}

	if !account.IsActive() {
		s.audit.Record(ctx, account.ID, domain.AuditLoginBlocked, meta, map[string]any{
			"status":   account.Status,
			"provider": providerName,
		})
		return nil, apperrors.AccountInactive()
	}
	if account.IsLockedAt(time.Now().UTC()) {
		s.audit.Record(ctx, account.ID, domain.AuditLoginBlocked, meta, map[string]any{
			"provider": providerName,
		})
		return nil, apperrors.AccountLocked()
	}

	session, tokenPair, err := s.sessions.Create(ctx, account, meta, false)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.accountRepo.ResetLockout(ctx, account.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to reset lockout counters",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	now := time.Now().UTC()
	account.LastLoginAt = &now
	if err := s.accountRepo.Update(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to record last login",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.Record(ctx, account.ID, domain.AuditOAuthLogin, meta, map[string]any{
		"provider":        providerName,
		"account_created": created,
	})

	return &AuthResult{
		Account: account,
		Session: session,
		Tokens:  tokenPair,
	}, nil
}

// resolveIdentity maps a provider identity onto an account. The match order
// is fixed: an account already bound to this provider identity wins; next an
// account with the same email is linked, unless it is bound to a different
// provider; otherwise a new account is created.
func (s *OAuthService) resolveIdentity(ctx context.Context, identity *oauth.Identity, meta RequestMeta) (*domain.Account, bool, error) {
	identity.Email = NormalizeEmail(identity.Email)

	account, err := s.accountRepo.GetByProvider(ctx, identity.Provider, identity.ProviderID)
	if err == nil {
		return account, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("look up account by provider: %w", err)
	}

	account, err = s.accountRepo.GetByEmail(ctx, identity.Email)
	if err == nil {
		if account.AuthProvider != domain.ProviderLocal {
			// The email already belongs to another provider's identity.
			// Linking here would let one provider capture the other's
			// account.
			return nil, false, apperrors.Conflict("email is already associated with a different sign-in method")
		}

		account.AuthProvider = identity.Provider
		account.ProviderID = identity.ProviderID
		// The provider delivered a token for this address, which is as good
		// as clicking a verification link.
		account.EmailVerified = true
		if err := s.accountRepo.Update(ctx, account); err != nil {
			return nil, false, fmt.Errorf("link provider to account: %w", err)
		}

		s.audit.Record(ctx, account.ID, domain.AuditOAuthLinked, meta, map[string]any{
			"provider": identity.Provider,
		})
		s.logger.InfoContext(ctx, "provider linked to existing account",
			slog.String("account_id", account.ID),
			slog.String("provider", identity.Provider),
		)

		return account, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("look up account by email: %w", err)
	}

	now := time.Now().UTC()
	account = &domain.Account{
		ID:            uuid.New().String(),
		Email:         identity.Email,
		Username:      synthesizeUsername(identity.Email),
		FirstName:     identity.FirstName,
		LastName:      identity.LastName,
		Role:          domain.RoleUser,
		Status:        domain.StatusActive,
		EmailVerified: identity.EmailVerified,
		AuthProvider:  identity.Provider,
		ProviderID:    identity.ProviderID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, false, fmt.Errorf("create account from provider identity: %w", err)
	}

	s.audit.Record(ctx, account.ID, domain.AuditAccountCreated, meta, map[string]any{
		"provider": identity.Provider,
	})
	s.logger.InfoContext(ctx, "account created from provider identity",
		slog.String("account_id", account.ID),
		slog.String("provider", identity.Provider),
	)

	return account, true, nil
}

// synthesizeUsername derives a username for accounts created from a provider
// identity. The random suffix keeps it unique without a pre-insert lookup.
func synthesizeUsername(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	return local + "-" + uuid.New().String()[:8]
}
