package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/finsight/auth/pkg/config"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8001"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"finsight"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"finsight_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns   int    `env:"DB_MAX_CONNS" envDefault:"10"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry   time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry  time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"24h"`
	JWTRememberExpiry time.Duration `env:"JWT_REMEMBER_ME_EXPIRY" envDefault:"720h"`

	// Password policy
	PasswordMinLength        int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordRequireUppercase bool `env:"PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	PasswordRequireLowercase bool `env:"PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	PasswordRequireNumbers   bool `env:"PASSWORD_REQUIRE_NUMBERS" envDefault:"true"`
	PasswordRequireSymbols   bool `env:"PASSWORD_REQUIRE_SYMBOLS" envDefault:"false"`

	// Lockout policy
	MaxLoginAttempts       int `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDurationMinutes int `env:"LOCKOUT_DURATION_MINUTES" envDefault:"30"`

	// Ephemeral token lifetimes
	VerificationTokenTTL  time.Duration `env:"EMAIL_VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	PasswordResetTokenTTL time.Duration `env:"PASSWORD_RESET_TOKEN_TTL" envDefault:"1h"`
	OAuthStateTTL         time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	// Background cleanup
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	AuditRetentionDays int           `env:"AUDIT_LOG_RETENTION_DAYS" envDefault:"90"`

	// OAuth providers
	GoogleClientID       string `env:"GOOGLE_OAUTH_CLIENT_ID" envDefault:""`
	GoogleClientSecret   string `env:"GOOGLE_OAUTH_CLIENT_SECRET" envDefault:""`
	GoogleRedirectURL    string `env:"GOOGLE_OAUTH_REDIRECT_URL" envDefault:""`
	FacebookClientID     string `env:"FACEBOOK_OAUTH_CLIENT_ID" envDefault:""`
	FacebookClientSecret string `env:"FACEBOOK_OAUTH_CLIENT_SECRET" envDefault:""`
	FacebookRedirectURL  string `env:"FACEBOOK_OAUTH_REDIRECT_URL" envDefault:""`

	// Tracing
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
	TracingEnabled bool    `env:"TRACING_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.MaxLoginAttempts < 1 {
		return nil, fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive, got %d", cfg.MaxLoginAttempts)
	}
	if cfg.LockoutDurationMinutes < 1 {
		return nil, fmt.Errorf("LOCKOUT_DURATION_MINUTES must be positive, got %d", cfg.LockoutDurationMinutes)
	}
	if cfg.PasswordMinLength < 1 {
		return nil, fmt.Errorf("PASSWORD_MIN_LENGTH must be positive, got %d", cfg.PasswordMinLength)
	}
	if cfg.CleanupInterval < time.Minute {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be at least one minute, got %s", cfg.CleanupInterval)
	}
	if cfg.AuditRetentionDays < 1 {
		return nil, fmt.Errorf("AUDIT_LOG_RETENTION_DAYS must be positive, got %d", cfg.AuditRetentionDays)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == "change-this-to-a-secure-secret" {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// LockoutDuration returns the lockout window as a duration.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationMinutes) * time.Minute
}

// AuditRetention returns the audit trail retention window as a duration.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// RedisAddr returns the Redis address in host:port form.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
