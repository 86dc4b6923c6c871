package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/repository"
	apperrors "github.com/finsight/auth/pkg/errors"
)

const (
	totpIssuer      = "FinSight"
	backupCodeCount = 10
	backupCodeBytes = 4 // 8 hex characters per code
)

// MFAService manages TOTP enrollment and verification. Enrollment is a two
// step handshake: Setup stores a pending secret, Enable confirms the
// authenticator produces valid codes before MFA starts gating logins.
type MFAService struct {
	accountRepo repository.AccountRepository
	backupRepo  repository.BackupCodeRepository
	audit       *AuditService
	logger      *slog.Logger
}

// NewMFAService creates a new MFA service.
func NewMFAService(
	accountRepo repository.AccountRepository,
	backupRepo repository.BackupCodeRepository,
	audit *AuditService,
	logger *slog.Logger,
) *MFAService {
	return &MFAService{
		accountRepo: accountRepo,
		backupRepo:  backupRepo,
		audit:       audit,
		logger:      logger,
	}
}

// SetupResult carries the enrollment material shown to the user exactly once.
type SetupResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// Setup generates a fresh TOTP secret and backup codes for the account. The
// secret stays pending until Enable confirms a valid code.
func (s *MFAService) Setup(ctx context.Context, accountID string) (*SetupResult, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account for mfa setup: %w", err)
	}
	if account.MFAEnabled {
		return nil, apperrors.Conflict("mfa is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	account.MFASecret = key.Secret()
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("store pending mfa secret: %w", err)
	}

	if err := s.backupRepo.Replace(ctx, account.ID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	s.logger.InfoContext(ctx, "mfa setup started",
		slog.String("account_id", account.ID),
	)

	return &SetupResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// Enable confirms enrollment with a code from the authenticator and turns
// MFA on for the account.
func (s *MFAService) Enable(ctx context.Context, accountID, code string, meta RequestMeta) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for mfa enable: %w", err)
	}
	if account.MFAEnabled {
		return apperrors.Conflict("mfa is already enabled")
	}
	if account.MFASecret == "" {
		return apperrors.InvalidInput("mfa setup has not been started")
	}

	if !totp.Validate(code, account.MFASecret) {
		return apperrors.Unauthorized("invalid mfa code")
	}

	account.MFAEnabled = true
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("enable mfa: %w", err)
	}

	s.audit.Record(ctx, account.ID, domain.AuditMFAEnabled, meta, nil)

	s.logger.InfoContext(ctx, "mfa enabled",
		slog.String("account_id", account.ID),
	)

	return nil
}

// VerifyCode checks a login challenge response. An account without MFA has
// no challenge to answer, so verification trivially succeeds. A TOTP code is
// accepted within one time step of clock skew; a backup code is consumed on
// match. When isBackup is false the code is still tried against the backup
// codes after the TOTP check, since clients send both through the same field.
func (s *MFAService) VerifyCode(ctx context.Context, account *domain.Account, code string, isBackup bool) error {
	if !account.MFAEnabled || account.MFASecret == "" {
		return nil
	}

	if isBackup {
		return s.consumeBackupCode(ctx, account.ID, code)
	}

	if totp.Validate(code, account.MFASecret) {
		return nil
	}

	return s.consumeBackupCode(ctx, account.ID, code)
}

// Disable turns MFA off. The password confirmation stops someone holding a
// live session from silently weakening the account.
func (s *MFAService) Disable(ctx context.Context, accountID, password string, meta RequestMeta) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for mfa disable: %w", err)
	}
	if !account.MFAEnabled {
		return apperrors.InvalidInput("mfa is not enabled")
	}
	if !account.HasPassword() {
		return apperrors.InvalidInput("account has no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return apperrors.Unauthorized("password is incorrect")
	}

	account.MFAEnabled = false
	account.MFASecret = ""
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("disable mfa: %w", err)
	}

	if err := s.backupRepo.DeleteForAccount(ctx, account.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete backup codes",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.Record(ctx, account.ID, domain.AuditMFADisabled, meta, nil)

	s.logger.InfoContext(ctx, "mfa disabled",
		slog.String("account_id", account.ID),
	)

	return nil
}

// RegenerateBackupCodes replaces the account's backup codes after a password
// confirmation and returns the new set.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, accountID, password string) ([]string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account for backup code rotation: %w", err)
	}
	if !account.MFAEnabled {
		return nil, apperrors.InvalidInput("mfa is not enabled")
	}
	if !account.HasPassword() {
		return nil, apperrors.InvalidInput("account has no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized("password is incorrect")
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := s.backupRepo.Replace(ctx, account.ID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	s.logger.InfoContext(ctx, "backup codes regenerated",
		slog.String("account_id", account.ID),
	)

	return codes, nil
}

// consumeBackupCode finds the unused backup code matching the input and
// marks it used. Losing the mark race to a concurrent request counts as a
// failed verification.
func (s *MFAService) consumeBackupCode(ctx context.Context, accountID, code string) error {
	stored, err := s.backupRepo.ListUnused(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list backup codes: %w", err)
	}

	for _, bc := range stored {
		if bcrypt.CompareHashAndPassword([]byte(bc.CodeHash), []byte(code)) == nil {
			if err := s.backupRepo.MarkUsed(ctx, bc.ID); err != nil {
				return apperrors.Unauthorized("invalid mfa code")
			}
			s.logger.InfoContext(ctx, "backup code consumed",
				slog.String("account_id", accountID),
			)
			return nil
		}
	}

	return apperrors.Unauthorized("invalid mfa code")
}

func generateBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)

	for i := 0; i < backupCodeCount; i++ {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("read random bytes: %w", err)
		}
		code := hex.EncodeToString(buf)

		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", err)
		}

		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}

	return codes, hashes, nil
}
