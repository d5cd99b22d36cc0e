package middleware

import (
	"context"
	"net/http"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/session"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userKey).(*auth.User)
	return u, ok && u != nil
}

// SessionChecker reports the user behind a session ID, or nil when the
// session is absent, expired or revoked.
type SessionChecker interface {
	CurrentSession(ctx context.Context, sessionID string) (*auth.User, error)
}

type AuthMiddleware struct {
	Sessions SessionChecker
}

func NewAuthMiddleware(sessions SessionChecker) *AuthMiddleware {
	return &AuthMiddleware{Sessions: sessions}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := session.IDFromRequest(r)
		if sessionID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Expiry and token refresh are handled by the session manager.
		user, err := a.Sessions.CurrentSession(r.Context(), sessionID)
		if err != nil {
			logger.Error("session check failed", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if user == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
