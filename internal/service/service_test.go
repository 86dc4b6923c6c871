package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsight/auth/internal/auth"
	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/event"
	pkgkafka "github.com/finsight/auth/pkg/kafka"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByProvider(ctx context.Context, provider, providerID string) (*domain.Account, error) {
	args := m.Called(ctx, provider, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockAccountRepository) Lock(ctx context.Context, id string, until time.Time) error {
	args := m.Called(ctx, id, until)
	return args.Error(0)
}

func (m *mockAccountRepository) ResetLockout(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Session Repository ---

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) RotateTokens(ctx context.Context, sessionID, accessJTI, refreshJTI string, expiresAt time.Time) error {
	args := m.Called(ctx, sessionID, accessJTI, refreshJTI, expiresAt)
	return args.Error(0)
}

func (m *mockSessionRepository) Revoke(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID string) ([]domain.Session, error) {
	args := m.Called(ctx, accountID, exceptSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Token Blacklist ---

type mockTokenBlacklist struct {
	mock.Mock
}

func (m *mockTokenBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	args := m.Called(ctx, jti, expiresAt)
	return args.Error(0)
}

func (m *mockTokenBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

// --- Mock Ephemeral Token Repository ---

type mockEphemeralTokenRepository struct {
	mock.Mock
}

func (m *mockEphemeralTokenRepository) Create(ctx context.Context, token *domain.EphemeralToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockEphemeralTokenRepository) Redeem(ctx context.Context, tokenHash, purpose string) (*domain.EphemeralToken, error) {
	args := m.Called(ctx, tokenHash, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EphemeralToken), args.Error(1)
}

func (m *mockEphemeralTokenRepository) InvalidateForAccount(ctx context.Context, accountID, purpose string) error {
	args := m.Called(ctx, accountID, purpose)
	return args.Error(0)
}

func (m *mockEphemeralTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Backup Code Repository ---

type mockBackupCodeRepository struct {
	mock.Mock
}

func (m *mockBackupCodeRepository) Replace(ctx context.Context, accountID string, codeHashes []string) error {
	args := m.Called(ctx, accountID, codeHashes)
	return args.Error(0)
}

func (m *mockBackupCodeRepository) ListUnused(ctx context.Context, accountID string) ([]domain.BackupCode, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.BackupCode), args.Error(1)
}

func (m *mockBackupCodeRepository) MarkUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBackupCodeRepository) DeleteForAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// --- Mock Audit Repository ---

type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) Create(ctx context.Context, event *domain.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockAuditRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func (m *mockAuditRepository) CountFailedLoginsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockAuditRepository) HasSuccessFromIP(ctx context.Context, accountID, ipAddress string, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, ipAddress, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuditRepository) HasAnySuccessSince(ctx context.Context, accountID string, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuditRepository) ListAll(ctx context.Context, eventType string, limit, offset int) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, eventType, limit, offset)
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func (m *mockAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock API Key Repository ---

type mockAPIKeyRepository struct {
	mock.Mock
}

func (m *mockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockAPIKeyRepository) GetByLookupHash(ctx context.Context, lookupHash string) (*domain.APIKey, error) {
	args := m.Called(ctx, lookupHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepository) Revoke(ctx context.Context, accountID, keyID string) error {
	args := m.Called(ctx, accountID, keyID)
	return args.Error(0)
}

func (m *mockAPIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager() *auth.JWTManager {
	return auth.NewJWTManager("test-secret-key-for-testing", 15*time.Minute, 24*time.Hour, 30*24*time.Hour)
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

// newTestAuditService returns an audit service whose repository accepts any
// write. Flows under test record audit events as a side effect; tests that
// assert on the trail itself set up their own repository.
func newTestAuditService() *AuditService {
	auditRepo := new(mockAuditRepository)
	auditRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.AuditEvent")).Return(nil).Maybe()
	auditRepo.On("HasSuccessFromIP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	auditRepo.On("HasAnySuccessSince", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	return NewAuditService(auditRepo, newTestEventProducer(), newTestLogger())
}

func newTestSessionService(sessionRepo *mockSessionRepository, blacklist *mockTokenBlacklist, accountRepo *mockAccountRepository) *SessionService {
	return NewSessionService(sessionRepo, blacklist, accountRepo, newTestJWTManager(), newTestLogger())
}

func testPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumbers:   true,
	}
}

func testLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 30 * time.Minute}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}
