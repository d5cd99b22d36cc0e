package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubSessions map[string]*auth.User

func (s stubSessions) CurrentSession(_ context.Context, sessionID string) (*auth.User, error) {
	if sessionID == "broken" {
		return nil, errors.New("store down")
	}
	return s[sessionID], nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	mw := NewAuthMiddleware(stubSessions{"sid-1": {UserID: "user-1", Email: "a@x.com"}})

	r := gin.New()
	r.GET("/classes", GinRequireAuth(mw), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, user.UserID)
	})
	return r
}

func TestGinRequireAuth(t *testing.T) {
	tests := []struct {
		name     string
		cookie   string
		wantCode int
		wantBody string
	}{
		{name: "no cookie", wantCode: http.StatusUnauthorized},
		{name: "unknown session", cookie: "sid-x", wantCode: http.StatusUnauthorized},
		{name: "store error", cookie: "broken", wantCode: http.StatusUnauthorized},
		{name: "valid session", cookie: "sid-1", wantCode: http.StatusOK, wantBody: "user-1"},
	}

	r := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/classes", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
