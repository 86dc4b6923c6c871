package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/pkg/middleware"
)

func setupSessionRouter(env *testEnv, accountID string) *chi.Mux {
	logger := handlerTestLogger()
	handler := NewSessionHandler(env.sessions, logger)

	r := chi.NewRouter()
	r.Route("/api/v1/auth/sessions", func(r chi.Router) {
		r.Use(middleware.Auth(fakeTokenValidator(accountID, domain.RoleUser)))
		r.Get("/", handler.List)
		r.Delete("/{id}", handler.Revoke)
	})
	return r
}

func TestSessionList_Success(t *testing.T) {
	env := newTestEnv()
	router := setupSessionRouter(env, testAccountID)

	s1 := *sampleSession("a1", "r1")
	s2 := *sampleSession("a2", "r2")
	s2.ID = "other-session"
	env.sessionRepo.On("ListActiveByAccount", mock.Anything, testAccountID).Return([]domain.Session{s1, s2}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions/", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestSessionRevoke_Success(t *testing.T) {
	env := newTestEnv()
	router := setupSessionRouter(env, testAccountID)
	session := sampleSession("access-jti", "refresh-jti")

	env.sessionRepo.On("GetByID", mock.Anything, testSessionID).Return(session, nil)
	env.sessionRepo.On("Revoke", mock.Anything, testSessionID).Return(session, nil)
	env.blacklist.On("Add", mock.Anything, "access-jti", mock.Anything).Return(nil)
	env.blacklist.On("Add", mock.Anything, "refresh-jti", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/sessions/"+testSessionID, nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env.blacklist.AssertExpectations(t)
}

func TestSessionRevoke_NotOwned(t *testing.T) {
	env := newTestEnv()
	router := setupSessionRouter(env, testAccountID)
	session := sampleSession("access-jti", "refresh-jti")
	session.AccountID = "someone-else"

	env.sessionRepo.On("GetByID", mock.Anything, testSessionID).Return(session, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/sessions/"+testSessionID, nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Sessions owned by another account are indistinguishable from missing.
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	env.sessionRepo.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}
