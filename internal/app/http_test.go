package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/auth/sessionmgr"
	"auth-gateway/internal/config"
	"auth-gateway/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// stubManager only knows about sid-1.
type stubManager struct{}

func (stubManager) SignUp(context.Context, string, string, sessionmgr.Attributes) (*sessionmgr.SignUpResult, error) {
	return &sessionmgr.SignUpResult{}, nil
}

func (stubManager) ConfirmSignUp(context.Context, string, string) (sessionmgr.ConfirmStatus, error) {
	return sessionmgr.ConfirmComplete, nil
}

func (stubManager) ResendConfirmationCode(context.Context, string) error { return nil }

func (stubManager) SignInWithPassword(context.Context, string, string) (*sessionmgr.SignInResult, error) {
	return nil, auth.ErrInvalidCredentials
}

func (stubManager) FederatedSignInURL(provider.Provider, string, string) (string, error) {
	return "https://auth.example.com/oauth2/authorize", nil
}

func (stubManager) CompleteFederatedSignIn(context.Context, string, string, string) error {
	return auth.ErrFederatedSignIn
}

func (stubManager) SignOut(context.Context, string) (string, error) {
	return "https://auth.example.com/logout", nil
}

func (stubManager) CurrentSession(_ context.Context, sessionID string) (*auth.User, error) {
	if sessionID == "sid-1" {
		return &auth.User{UserID: "user-1", Email: "a@x.com"}, nil
	}
	return nil, nil
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		SessionTTL:           time.Hour,
		CallbackGracePeriod:  10 * time.Millisecond,
		CallbackFailureDelay: 2 * time.Second,
	}
	return newRouter(cfg, stubManager{}, provider.NewRegistry(provider.Google))
}

func get(r http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	r := testRouter()

	health := get(r, "/health")
	assert.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	metrics := get(r, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusBadRequest, get(r, "/oauth/login/microsoft").Code)
	assert.Equal(t, http.StatusFound, get(r, "/oauth/login/google").Code)
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	r := testRouter()
	sid := &http.Cookie{Name: session.CookieName, Value: "sid-1"}

	for _, path := range []string{"/classes", "/api/me"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, path).Code)

			rec := get(r, path, sid)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `"user_id":"user-1"`)
		})
	}
}
