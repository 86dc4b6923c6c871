package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finsight/auth/internal/auth"
	"github.com/finsight/auth/internal/config"
	"github.com/finsight/auth/internal/event"
	handler "github.com/finsight/auth/internal/handler/http"
	"github.com/finsight/auth/internal/oauth"
	"github.com/finsight/auth/internal/repository/postgres"
	redisrepo "github.com/finsight/auth/internal/repository/redis"
	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/migrations"
	"github.com/finsight/auth/pkg/database"
	"github.com/finsight/auth/pkg/health"
	"github.com/finsight/auth/pkg/httpclient"
	pkgkafka "github.com/finsight/auth/pkg/kafka"
	"github.com/finsight/auth/pkg/tracing"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	sessions *service.SessionService
	tokens   *service.TokenService
	audit    *service.AuditService
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "auth",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.TraceSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        int32(cfg.DBMaxConns),
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis for the token blacklist.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr()))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry, cfg.JWTRememberExpiry)

	accountRepo := postgres.NewAccountRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	tokenRepo := postgres.NewEphemeralTokenRepository(pool)
	backupCodeRepo := postgres.NewBackupCodeRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	apiKeyRepo := postgres.NewAPIKeyRepository(pool)
	blacklist := redisrepo.NewTokenBlacklist(redisClient)

	eventProducer := event.NewProducer(producer, logger)

	auditService := service.NewAuditService(auditRepo, eventProducer, logger)
	sessionService := service.NewSessionService(sessionRepo, blacklist, accountRepo, jwtManager, logger)
	mfaService := service.NewMFAService(accountRepo, backupCodeRepo, auditService, logger)

	passwordPolicy := service.PasswordPolicy{
		MinLength:        cfg.PasswordMinLength,
		RequireUppercase: cfg.PasswordRequireUppercase,
		RequireLowercase: cfg.PasswordRequireLowercase,
		RequireNumbers:   cfg.PasswordRequireNumbers,
		RequireSymbols:   cfg.PasswordRequireSymbols,
	}
	lockoutPolicy := service.LockoutPolicy{
		MaxAttempts: cfg.MaxLoginAttempts,
		Duration:    cfg.LockoutDuration(),
	}
	accountService := service.NewAccountService(
		accountRepo, sessionService, mfaService, auditService, eventProducer, passwordPolicy, lockoutPolicy, logger,
	)

	tokenService := service.NewTokenService(
		tokenRepo, accountRepo, sessionService, auditService, eventProducer, passwordPolicy,
		service.TokenTTLs{
			EmailVerification: cfg.VerificationTokenTTL,
			PasswordReset:     cfg.PasswordResetTokenTTL,
			OAuthState:        cfg.OAuthStateTTL,
		},
		logger,
	)

	// OAuth providers. Unconfigured providers are left out of the registry
	// and their endpoints answer with an invalid provider error.
	oauthClient := httpclient.New(httpclient.DefaultConfig())
	var providers []oauth.Provider
	if creds := (oauth.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}); creds.Configured() {
		providers = append(providers, oauth.NewGoogleProvider(creds, oauthClient))
	}
	if creds := (oauth.Credentials{
		ClientID:     cfg.FacebookClientID,
		ClientSecret: cfg.FacebookClientSecret,
		RedirectURL:  cfg.FacebookRedirectURL,
	}); creds.Configured() {
		providers = append(providers, oauth.NewFacebookProvider(creds, oauthClient))
	}
	oauthService := service.NewOAuthService(
		oauth.NewRegistry(providers...), accountRepo, sessionService, tokenService, auditService, logger,
	)

	apiKeyService := service.NewAPIKeyService(apiKeyRepo, auditService, logger)

	// Health checks.
	healthHandler := health.NewHandler("auth", "0.1.0")
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(
		handler.Services{
			Accounts: accountService,
			Sessions: sessionService,
			MFA:      mfaService,
			Tokens:   tokenService,
			OAuth:    oauthService,
			APIKeys:  apiKeyService,
			Audit:    auditService,
		},
		healthHandler,
		logger,
		handler.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		sessions:       sessionService,
		tokens:         tokenService,
		audit:          auditService,
	}, nil
}

// Run starts the HTTP server and the background cleanup loop, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.runCleanup(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runCleanup periodically sweeps expired sessions, expired ephemeral tokens
// and audit events past the retention window. Sweep failures are logged and
// retried on the next tick.
func (a *App) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := a.sessions.CleanupExpired(sweepCtx); err != nil {
			a.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		}
		if _, err := a.tokens.CleanupExpired(sweepCtx); err != nil {
			a.logger.Error("token cleanup failed", slog.String("error", err.Error()))
		}
		if _, err := a.audit.CleanupOld(sweepCtx, a.cfg.AuditRetention()); err != nil {
			a.logger.Error("audit cleanup failed", slog.String("error", err.Error()))
		}
		cancel()
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
