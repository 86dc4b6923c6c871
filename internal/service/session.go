package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/auth/internal/auth"
	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/repository"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// SessionService issues and revokes sessions and their token pairs. The
// blacklist is shared storage, so a token revoked through one service
// instance is rejected by every other instance on its next use.
type SessionService struct {
	sessionRepo repository.SessionRepository
	blacklist   repository.TokenBlacklist
	accountRepo repository.AccountRepository
	jwtManager  *auth.JWTManager
	logger      *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(
	sessionRepo repository.SessionRepository,
	blacklist repository.TokenBlacklist,
	accountRepo repository.AccountRepository,
	jwtManager *auth.JWTManager,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		blacklist:   blacklist,
		accountRepo: accountRepo,
		jwtManager:  jwtManager,
		logger:      logger,
	}
}

// Create opens a new session for the account and issues its token pair.
func (s *SessionService) Create(ctx context.Context, account *domain.Account, meta RequestMeta, rememberMe bool) (*domain.Session, *domain.TokenPair, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		RememberMe:   rememberMe,
		ExpiresAt:    now.Add(s.jwtManager.RefreshExpiry(rememberMe)),
		CreatedAt:    now,
		LastActiveAt: now,
	}

	accessToken, accessJTI, err := s.jwtManager.GenerateAccessToken(account.ID, session.ID, account.Email, account.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}
	refreshToken, refreshJTI, err := s.jwtManager.GenerateRefreshToken(account.ID, session.ID, rememberMe)
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}

	session.AccessJTI = accessJTI
	session.RefreshJTI = refreshJTI

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created",
		slog.String("account_id", account.ID),
		slog.String("session_id", session.ID),
	)

	return session, &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpiry().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair. The old
// pair is blacklisted so it cannot be replayed.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return nil, apperrors.Revoked("refresh token")
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, apperrors.InvalidToken("refresh token")
	}
	now := time.Now().UTC()
	if session.IsRevoked() || session.IsExpiredAt(now) {
		return nil, apperrors.Revoked("session")
	}
	if session.RefreshJTI != claims.ID {
		// A stale token from before the last rotation. Treat it as replay
		// and shut the session down.
		s.logger.WarnContext(ctx, "stale refresh token replayed, revoking session",
			slog.String("session_id", session.ID),
			slog.String("account_id", session.AccountID),
		)
		if _, revokeErr := s.Revoke(ctx, session.ID); revokeErr != nil {
			s.logger.ErrorContext(ctx, "failed to revoke session after replay",
				slog.String("session_id", session.ID),
				slog.String("error", revokeErr.Error()),
			)
		}
		return nil, apperrors.Revoked("refresh token")
	}

	account, err := s.accountRepo.GetByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account for refresh: %w", err)
	}
	if !account.IsActive() {
		return nil, apperrors.AccountInactive()
	}

	accessToken, accessJTI, err := s.jwtManager.GenerateAccessToken(account.ID, session.ID, account.Email, account.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	newRefreshToken, refreshJTI, err := s.jwtManager.GenerateRefreshToken(account.ID, session.ID, session.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := now.Add(s.jwtManager.RefreshExpiry(session.RememberMe))
	if err := s.sessionRepo.RotateTokens(ctx, session.ID, accessJTI, refreshJTI, expiresAt); err != nil {
		return nil, fmt.Errorf("rotate session tokens: %w", err)
	}

	// Retire the replaced pair. Blacklist failures are logged, not fatal:
	// the rotation already invalidated the stored jtis.
	s.blacklistJTI(ctx, session.AccessJTI, now.Add(s.jwtManager.AccessExpiry()))
	s.blacklistJTI(ctx, claims.ID, claims.ExpiresAt.Time)

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("account_id", account.ID),
		slog.String("session_id", session.ID),
	)

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpiry().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ValidateAccess parses an access token and rejects it when revoked. This is
// the hot path behind the auth middleware.
func (s *SessionService) ValidateAccess(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.jwtManager.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return nil, apperrors.Revoked("access token")
	}

	return claims, nil
}

// Revoke closes one session and blacklists its outstanding token pair.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessionRepo.Revoke(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}

	// The session row is already revoked, but the issued JWTs stay valid
	// until expiry unless blacklisted, so a blacklist failure must surface.
	deadline := session.ExpiresAt
	if err := s.blacklist.Add(ctx, session.AccessJTI, deadline); err != nil {
		return nil, fmt.Errorf("blacklist access token: %w", err)
	}
	if err := s.blacklist.Add(ctx, session.RefreshJTI, deadline); err != nil {
		return nil, fmt.Errorf("blacklist refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "session revoked",
		slog.String("account_id", session.AccountID),
		slog.String("session_id", session.ID),
	)

	return session, nil
}

// RevokeOwned closes a session after checking it belongs to the account.
func (s *SessionService) RevokeOwned(ctx context.Context, accountID, sessionID string) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session.AccountID != accountID {
		return apperrors.NotFound("session", sessionID)
	}

	_, err = s.Revoke(ctx, sessionID)
	return err
}

// RevokeAll closes every active session for the account and blacklists all
// their tokens. A non-empty exceptSessionID is left open, which lets a
// password change keep the session it was made from. Returns the number of
// sessions revoked.
func (s *SessionService) RevokeAll(ctx context.Context, accountID, exceptSessionID string) (int, error) {
	sessions, err := s.sessionRepo.RevokeAllForAccount(ctx, accountID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	for _, session := range sessions {
		s.blacklistJTI(ctx, session.AccessJTI, session.ExpiresAt)
		s.blacklistJTI(ctx, session.RefreshJTI, session.ExpiresAt)
	}

	s.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("account_id", accountID),
		slog.Int("count", len(sessions)),
	)

	return len(sessions), nil
}

// List returns the account's active sessions.
func (s *SessionService) List(ctx context.Context, accountID string) ([]domain.Session, error) {
	sessions, err := s.sessionRepo.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CleanupExpired removes sessions whose lifetime has elapsed. Blacklist
// entries need no sweep since each one expires with its token.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "expired sessions removed", slog.Int64("count", n))
	}

	return n, nil
}

func (s *SessionService) blacklistJTI(ctx context.Context, jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	if err := s.blacklist.Add(ctx, jti, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to blacklist token",
			slog.String("jti", jti),
			slog.String("error", err.Error()),
		)
	}
}
