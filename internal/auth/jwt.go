package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/finsight/auth/pkg/errors"
)

const issuer = "auth-service"

// Token type values carried in the typ claim so an access token can never be
// replayed where a refresh token is expected, and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims for an access token.
type Claims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the JWT claims for a refresh token.
type RefreshClaims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager handles token generation and validation. Every issued token
// carries a unique jti so individual tokens can be blacklisted.
type JWTManager struct {
	secret         []byte
	accessExpiry   time.Duration
	refreshExpiry  time.Duration
	rememberExpiry time.Duration
}

// NewJWTManager creates a new JWT manager with the given secret and expiry
// durations. rememberExpiry is the refresh lifetime for remember-me sessions.
func NewJWTManager(secret string, accessExpiry, refreshExpiry, rememberExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:         []byte(secret),
		accessExpiry:   accessExpiry,
		refreshExpiry:  refreshExpiry,
		rememberExpiry: rememberExpiry,
	}
}

// AccessExpiry returns the configured access token lifetime.
func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// RefreshExpiry returns the refresh token lifetime for the given
// remember-me choice.
func (m *JWTManager) RefreshExpiry(rememberMe bool) time.Duration {
	if rememberMe {
		return m.rememberExpiry
	}
	return m.refreshExpiry
}

// GenerateAccessToken creates a signed access token and returns the token
// string along with its jti.
func (m *JWTManager) GenerateAccessToken(accountID, sessionID, email, role string) (token string, jti string, err error) {
	now := time.Now().UTC()
	jti = uuid.New().String()
	claims := &Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Email:     email,
		Role:      role,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, jti, nil
}

// GenerateRefreshToken creates a signed refresh token and returns the token
// string along with its jti.
func (m *JWTManager) GenerateRefreshToken(accountID, sessionID string, rememberMe bool) (token string, jti string, err error) {
	now := time.Now().UTC()
	jti = uuid.New().String()
	claims := &RefreshClaims{
		AccountID: accountID,
		SessionID: sessionID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.RefreshExpiry(rememberMe))),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, jti, nil
}

// ValidateAccessToken parses and validates an access token, returning its
// claims. Expired tokens yield an expiry error distinct from malformed ones.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Expired("access token")
		}
		return nil, apperrors.InvalidToken("access token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeAccess {
		return nil, apperrors.InvalidToken("access token")
	}
	return claims, nil
}

// ValidateRefreshToken parses and validates a refresh token, returning its
// claims.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Expired("refresh token")
		}
		return nil, apperrors.InvalidToken("refresh token")
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeRefresh {
		return nil, apperrors.InvalidToken("refresh token")
	}
	return claims, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}
