package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/internal/oauth"
	"github.com/finsight/auth/internal/service"
	apperrors "github.com/finsight/auth/pkg/errors"
)

// stubProvider is a canned identity provider for callback tests.
type stubProvider struct {
	name        string
	identity    *oauth.Identity
	exchangeErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/authorize?state=" + state
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*oauth.Identity, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.identity, nil
}

func googleIdentity() *oauth.Identity {
	return &oauth.Identity{
		Provider:      domain.ProviderGoogle,
		ProviderID:    "google-uid-1",
		Email:         "test@example.com",
		EmailVerified: true,
		FirstName:     "John",
		LastName:      "Doe",
	}
}

func setupOAuthRouter(env *testEnv, provider oauth.Provider) *chi.Mux {
	logger := handlerTestLogger()
	registry := oauth.NewRegistry(provider)
	svc := service.NewOAuthService(registry, env.accountRepo, env.sessions, env.tokens, env.audit, logger)
	handler := NewOAuthHandler(svc, logger)

	r := chi.NewRouter()
	r.Route("/api/v1/auth/oauth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Get("/{provider}/url", handler.AuthURL)
		r.Post("/{provider}/callback", handler.Callback)
	})
	return r
}

func TestOAuthURL_Success(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle})

	env.tokenRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.EphemeralToken")).Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/oauth/google/url", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["url"], "https://provider.example.com/authorize?state=")
	env.tokenRepo.AssertExpectations(t)
}

func TestOAuthURL_UnknownProvider(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/oauth/github/url", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestOAuthCallback_ExistingIdentity(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle, identity: googleIdentity()})
	account := sampleAccount()
	account.AuthProvider = domain.ProviderGoogle
	account.ProviderID = "google-uid-1"

	env.tokenRepo.On("Redeem", mock.Anything, mock.AnythingOfType("string"), domain.PurposeOAuthState).
		Return(&domain.EphemeralToken{ID: "tok-1", Purpose: domain.PurposeOAuthState, Provider: domain.ProviderGoogle}, nil)
	env.accountRepo.On("GetByProvider", mock.Anything, domain.ProviderGoogle, "google-uid-1").Return(account, nil)
	env.sessionRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	env.accountRepo.On("Update", mock.Anything, account).Return(nil)

	rec := postJSON(t, router, "/api/v1/auth/oauth/google/callback", OAuthCallbackRequest{
		Code:  "auth-code",
		State: "the-state",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	tokens, ok := data["tokens"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, tokens["access_token"])
	env.accountRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestOAuthCallback_ProviderStateMismatch(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle, identity: googleIdentity()})

	// State was minted for a different provider's flow.
	env.tokenRepo.On("Redeem", mock.Anything, mock.AnythingOfType("string"), domain.PurposeOAuthState).
		Return(&domain.EphemeralToken{ID: "tok-1", Purpose: domain.PurposeOAuthState, Provider: domain.ProviderFacebook}, nil)

	rec := postJSON(t, router, "/api/v1/auth/oauth/google/callback", OAuthCallbackRequest{
		Code:  "auth-code",
		State: "the-state",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_TOKEN", resp.Error.Code)
	env.accountRepo.AssertNotCalled(t, "GetByProvider", mock.Anything, mock.Anything, mock.Anything)
}

func TestOAuthCallback_ExchangeFailureStaysGeneric(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{
		name:        domain.ProviderGoogle,
		exchangeErr: assert.AnError,
	})

	env.tokenRepo.On("Redeem", mock.Anything, mock.AnythingOfType("string"), domain.PurposeOAuthState).
		Return(&domain.EphemeralToken{ID: "tok-1", Purpose: domain.PurposeOAuthState, Provider: domain.ProviderGoogle}, nil)

	rec := postJSON(t, router, "/api/v1/auth/oauth/google/callback", OAuthCallbackRequest{
		Code:  "auth-code",
		State: "the-state",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, assert.AnError.Error())
}

func TestOAuthCallback_EmailBoundToOtherProvider(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle, identity: googleIdentity()})
	account := sampleAccount()
	account.AuthProvider = domain.ProviderFacebook
	account.ProviderID = "facebook-uid-9"

	env.tokenRepo.On("Redeem", mock.Anything, mock.AnythingOfType("string"), domain.PurposeOAuthState).
		Return(&domain.EphemeralToken{ID: "tok-1", Purpose: domain.PurposeOAuthState, Provider: domain.ProviderGoogle}, nil)
	env.accountRepo.On("GetByProvider", mock.Anything, domain.ProviderGoogle, "google-uid-1").
		Return(nil, apperrors.NotFound("account", "google-uid-1"))
	env.accountRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil)

	rec := postJSON(t, router, "/api/v1/auth/oauth/google/callback", OAuthCallbackRequest{
		Code:  "auth-code",
		State: "the-state",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	env.accountRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	env.accountRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOAuthCallback_MissingState(t *testing.T) {
	env := newTestEnv()
	router := setupOAuthRouter(env, &stubProvider{name: domain.ProviderGoogle, identity: googleIdentity()})

	rec := postJSON(t, router, "/api/v1/auth/oauth/google/callback", OAuthCallbackRequest{Code: "auth-code"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}
