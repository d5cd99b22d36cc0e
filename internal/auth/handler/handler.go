package handler

import (
	"context"
	"net/http"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/callback"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/auth/sessionmgr"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionManager is the identity surface the routes drive.
// *sessionmgr.Manager satisfies it.
type SessionManager interface {
	SignUp(ctx context.Context, email string, password string, attrs sessionmgr.Attributes) (*sessionmgr.SignUpResult, error)
	ConfirmSignUp(ctx context.Context, username string, code string) (sessionmgr.ConfirmStatus, error)
	ResendConfirmationCode(ctx context.Context, email string) error
	SignInWithPassword(ctx context.Context, email string, password string) (*sessionmgr.SignInResult, error)
	FederatedSignInURL(p provider.Provider, state string, codeChallenge string) (string, error)
	CompleteFederatedSignIn(ctx context.Context, sessionID string, code string, codeVerifier string) error
	SignOut(ctx context.Context, sessionID string) (string, error)
	CurrentSession(ctx context.Context, sessionID string) (*auth.User, error)
}

// CallbackResolver decides the outcome of a federated redirect.
// *callback.Resolver satisfies it.
type CallbackResolver interface {
	Resolve(ctx context.Context, sessionID string) <-chan callback.Outcome
}

// Config controls cookies and the detached code exchange.
type Config struct {
	Cookies         session.CookieOptions
	SessionTTL      time.Duration
	ExchangeTimeout time.Duration
	LoginRoute      string
	FailureDelay    time.Duration
}

type Handler struct {
	sessions  SessionManager
	providers *provider.Registry
	callbacks CallbackResolver

	cookies         session.CookieOptions
	sessionTTL      time.Duration
	exchangeTimeout time.Duration
	loginRoute      string
	failureDelay    time.Duration
}

func NewHandler(
	sessions SessionManager,
	registry *provider.Registry,
	callbacks CallbackResolver,
	cfg Config,
) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 10 * time.Second
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = "/login"
	}
	if cfg.FailureDelay <= 0 {
		cfg.FailureDelay = 2 * time.Second
	}
	return &Handler{
		sessions:        sessions,
		providers:       registry,
		callbacks:       callbacks,
		cookies:         cfg.Cookies,
		sessionTTL:      cfg.SessionTTL,
		exchangeTimeout: cfg.ExchangeTimeout,
		loginRoute:      cfg.LoginRoute,
		failureDelay:    cfg.FailureDelay,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/confirm/resend", h.ResendCode)
	r.GET("/confirm", h.Confirm)

	r.GET("/oauth/login/:provider", h.login)
	r.GET("/callback", h.callback)

	r.GET("/auth/session", h.Session)
	r.POST("/auth/logout", h.Logout)
}

// Session reports the authenticated user, or 401 when there is none.
func (h *Handler) Session(c *gin.Context) {
	user, err := h.sessions.CurrentSession(c.Request.Context(), session.IDFromRequest(c.Request))
	if err != nil {
		logger.Error("session lookup failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	logoutURL, err := h.sessions.SignOut(c.Request.Context(), session.IDFromRequest(c.Request))
	if err != nil {
		// The cookie is cleared regardless; the record expires on its own.
		logger.Warn("sign-out failed", map[string]any{
			"error": err.Error(),
		})
	}

	session.ClearCookie(c.Writer, h.cookies)

	c.JSON(http.StatusOK, gin.H{
		"status":     "logged_out",
		"logout_url": logoutURL,
	})
}

func (h *Handler) issueSession(c *gin.Context, sessionID string) {
	session.SetCookie(c.Writer, sessionID, time.Now().Add(h.sessionTTL), h.cookies)
}
