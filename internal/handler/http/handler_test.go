package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsight/auth/internal/auth"
	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/event"
	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/httputil"
	pkgkafka "github.com/finsight/auth/pkg/kafka"
	"github.com/finsight/auth/pkg/middleware"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByProvider(ctx context.Context, provider, providerID string) (*domain.Account, error) {
	args := m.Called(ctx, provider, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) Update(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockAccountRepo) Lock(ctx context.Context, id string, until time.Time) error {
	args := m.Called(ctx, id, until)
	return args.Error(0)
}

func (m *mockAccountRepo) ResetLockout(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepo) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepo) RotateTokens(ctx context.Context, sessionID, accessJTI, refreshJTI string, expiresAt time.Time) error {
	args := m.Called(ctx, sessionID, accessJTI, refreshJTI, expiresAt)
	return args.Error(0)
}

func (m *mockSessionRepo) Revoke(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepo) RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID string) ([]domain.Session, error) {
	args := m.Called(ctx, accountID, exceptSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockBlacklist struct {
	mock.Mock
}

func (m *mockBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	args := m.Called(ctx, jti, expiresAt)
	return args.Error(0)
}

func (m *mockBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

type mockEphemeralTokenRepo struct {
	mock.Mock
}

func (m *mockEphemeralTokenRepo) Create(ctx context.Context, token *domain.EphemeralToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockEphemeralTokenRepo) Redeem(ctx context.Context, tokenHash, purpose string) (*domain.EphemeralToken, error) {
	args := m.Called(ctx, tokenHash, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EphemeralToken), args.Error(1)
}

func (m *mockEphemeralTokenRepo) InvalidateForAccount(ctx context.Context, accountID, purpose string) error {
	args := m.Called(ctx, accountID, purpose)
	return args.Error(0)
}

func (m *mockEphemeralTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockBackupCodeRepo struct {
	mock.Mock
}

func (m *mockBackupCodeRepo) Replace(ctx context.Context, accountID string, codeHashes []string) error {
	args := m.Called(ctx, accountID, codeHashes)
	return args.Error(0)
}

func (m *mockBackupCodeRepo) ListUnused(ctx context.Context, accountID string) ([]domain.BackupCode, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.BackupCode), args.Error(1)
}

func (m *mockBackupCodeRepo) MarkUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBackupCodeRepo) DeleteForAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Create(ctx context.Context, event *domain.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockAuditRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func (m *mockAuditRepo) CountFailedLoginsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockAuditRepo) HasSuccessFromIP(ctx context.Context, accountID, ipAddress string, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, ipAddress, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuditRepo) HasAnySuccessSince(ctx context.Context, accountID string, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuditRepo) ListAll(ctx context.Context, eventType string, limit, offset int) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, eventType, limit, offset)
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockAPIKeyRepo struct {
	mock.Mock
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockAPIKeyRepo) GetByLookupHash(ctx context.Context, lookupHash string) (*domain.APIKey, error) {
	args := m.Called(ctx, lookupHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepo) Revoke(ctx context.Context, accountID, keyID string) error {
	args := m.Called(ctx, accountID, keyID)
	return args.Error(0)
}

func (m *mockAPIKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ============================================================================
// Test Environment
// ============================================================================

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func handlerTestEventProducer() *event.Producer {
	logger := handlerTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

// testEnv wires real services over mock repositories so handler tests can
// drive full routes through httptest.
type testEnv struct {
	accountRepo *mockAccountRepo
	sessionRepo *mockSessionRepo
	blacklist   *mockBlacklist
	tokenRepo   *mockEphemeralTokenRepo
	backupRepo  *mockBackupCodeRepo
	auditRepo   *mockAuditRepo
	keyRepo     *mockAPIKeyRepo

	jwt *auth.JWTManager

	accounts *service.AccountService
	sessions *service.SessionService
	mfa      *service.MFAService
	tokens   *service.TokenService
	keys     *service.APIKeyService
	audit    *service.AuditService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		accountRepo: new(mockAccountRepo),
		sessionRepo: new(mockSessionRepo),
		blacklist:   new(mockBlacklist),
		tokenRepo:   new(mockEphemeralTokenRepo),
		backupRepo:  new(mockBackupCodeRepo),
		auditRepo:   new(mockAuditRepo),
		keyRepo:     new(mockAPIKeyRepo),
	}

	// Audit writes are a side effect of almost every flow. Tests that assert
	// on the trail set up their own expectations on auditRepo.
	env.auditRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.AuditEvent")).Return(nil).Maybe()

	logger := handlerTestLogger()
	producer := handlerTestEventProducer()
	env.jwt = auth.NewJWTManager("test-secret-key-for-testing", 15*time.Minute, 24*time.Hour, 30*24*time.Hour)

	policy := service.PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumbers:   true,
	}
	lockout := service.LockoutPolicy{MaxAttempts: 5, Duration: 30 * time.Minute}
	ttls := service.TokenTTLs{
		EmailVerification: 24 * time.Hour,
		PasswordReset:     time.Hour,
		OAuthState:        10 * time.Minute,
	}

	env.audit = service.NewAuditService(env.auditRepo, producer, logger)
	env.sessions = service.NewSessionService(env.sessionRepo, env.blacklist, env.accountRepo, env.jwt, logger)
	env.mfa = service.NewMFAService(env.accountRepo, env.backupRepo, env.audit, logger)
	env.accounts = service.NewAccountService(env.accountRepo, env.sessions, env.mfa, env.audit, producer, policy, lockout, logger)
	env.tokens = service.NewTokenService(env.tokenRepo, env.accountRepo, env.sessions, env.audit, producer, policy, ttls, logger)
	env.keys = service.NewAPIKeyService(env.keyRepo, env.audit, logger)

	return env
}

// fakeTokenValidator injects fixed claims so authenticated routes can be
// exercised without minting real tokens.
func fakeTokenValidator(accountID, role string) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		return &middleware.Claims{
			AccountID: accountID,
			SessionID: testSessionID,
			Email:     "test@example.com",
			Role:      role,
		}, nil
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

const testAccountID = "7f6c1e3a-9d2b-4c8f-b1a0-5e4d3c2b1a09"
const testSessionID = "2b9e8d7c-6f5a-4e3d-9c8b-7a6f5e4d3c2b"

func sampleAccount() *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:            testAccountID,
		Email:         "test@example.com",
		Username:      "testuser",
		PasswordHash:  hashForTest("SecurePass123"),
		FirstName:     "John",
		LastName:      "Doe",
		Role:          domain.RoleUser,
		Status:        domain.StatusActive,
		EmailVerified: true,
		AuthProvider:  domain.ProviderLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func sampleSession(accessJTI, refreshJTI string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:           testSessionID,
		AccountID:    testAccountID,
		AccessJTI:    accessJTI,
		RefreshJTI:   refreshJTI,
		IPAddress:    "192.0.2.1",
		UserAgent:    "handler-test",
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}
