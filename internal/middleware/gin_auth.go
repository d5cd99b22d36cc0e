package middleware

import (
	"net/http"

	"auth-gateway/internal/auth"

	"github.com/gin-gonic/gin"
)

// GinRequireAuth adapts the net/http AuthMiddleware to Gin.
func GinRequireAuth(a *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		a.RequireAuth(next).ServeHTTP(c.Writer, c.Request)

		// If auth middleware already handled the response, stop Gin chain
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// CurrentUser returns the user attached by GinRequireAuth.
func CurrentUser(c *gin.Context) (*auth.User, bool) {
	return UserFromContext(c.Request.Context())
}
