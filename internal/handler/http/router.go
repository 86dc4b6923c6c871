package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/service"
	"github.com/finsight/auth/pkg/health"
	"github.com/finsight/auth/pkg/middleware"
)

// Services bundles the service-layer dependencies the router wires up.
type Services struct {
	Accounts *service.AccountService
	Sessions *service.SessionService
	MFA      *service.MFAService
	Tokens   *service.TokenService
	OAuth    *service.OAuthService
	APIKeys  *service.APIKeyService
	Audit    *service.AuditService
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	svcs Services,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to the session service, so revoked
	// tokens are rejected in addition to signature and expiry checks.
	tokenValidator := func(ctx context.Context, token string) (*middleware.Claims, error) {
		claims, err := svcs.Sessions.ValidateAccess(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			AccountID: claims.AccountID,
			SessionID: claims.SessionID,
			Email:     claims.Email,
			Role:      claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(svcs.Accounts, svcs.Sessions, svcs.Tokens, logger)
	mfaHandler := NewMFAHandler(svcs.MFA, svcs.Accounts, logger)
	oauthHandler := NewOAuthHandler(svcs.OAuth, logger)
	sessionHandler := NewSessionHandler(svcs.Sessions, logger)
	apiKeyHandler := NewAPIKeyHandler(svcs.APIKeys, logger)
	auditHandler := NewAuditHandler(svcs.Audit, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Public endpoints
		r.Group(func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/verify-email", authHandler.VerifyEmail)

			r.Get("/oauth/{provider}/url", oauthHandler.AuthURL)
			r.Post("/oauth/{provider}/callback", oauthHandler.Callback)
		})

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))

			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Post("/change-password", authHandler.ChangePassword)
			r.Post("/resend-verification", authHandler.ResendVerification)

			r.Post("/mfa/setup", mfaHandler.Setup)
			r.Post("/mfa/enable", mfaHandler.Enable)
			r.Post("/mfa/verify", mfaHandler.Verify)
			r.Post("/mfa/disable", mfaHandler.Disable)
			r.Post("/mfa/backup-codes", mfaHandler.RegenerateBackupCodes)

			r.Get("/sessions", sessionHandler.List)
			r.Delete("/sessions/{id}", sessionHandler.Revoke)

			r.Get("/api-keys", apiKeyHandler.List)
			r.Post("/api-keys", apiKeyHandler.Create)
			r.Delete("/api-keys/{id}", apiKeyHandler.Revoke)

			r.Get("/audit/logs", auditHandler.Logs)
		})
	})

	// Operator endpoints
	adminHandler := NewAdminHandler(svcs.Accounts, svcs.Audit, logger)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/audit/logs", adminHandler.SystemAuditLogs)
		r.Get("/audit/logs/{accountID}", adminHandler.AuditLogs)
		r.Get("/audit/suspicion/{accountID}", adminHandler.Suspicion)
		r.Put("/users/{id}/role", adminHandler.SetRole)
		r.Post("/users/{id}/deactivate", adminHandler.Deactivate)
	})

	return r
}
