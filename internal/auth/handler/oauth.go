package handler

import (
	"context"
	"net/http"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/callback"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := h.generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state error"})
		return
	}
	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pkce error"})
		return
	}

	authURL, err := h.sessions.FederatedSignInURL(p, state, codeChallenge)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": auth.MessageAuthFailed})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// callback is where the hosted UI sends the browser back. The code
// exchange runs detached from the request while the resolver waits out
// the grace period and checks once for the session.
func (h *Handler) callback(c *gin.Context) {
	// One round trip per state and verifier, whatever the outcome.
	h.clearFlowCookies(c)

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"error": errParam,
			"desc":  c.Query("error_description"),
		})
		h.renderFailure(c, http.StatusUnauthorized, auth.MessageAuthFailed)
		return
	}

	if !validateState(c) {
		logger.Warn("oidc callback state mismatch", nil)
		h.renderFailure(c, http.StatusUnauthorized, auth.MessageAuthFailed)
		return
	}

	code := c.Query("code")
	codeVerifier := getPKCEVerifier(c)
	if code == "" || codeVerifier == "" {
		logger.Warn("oidc callback missing code or pkce verifier", nil)
		h.renderFailure(c, http.StatusBadRequest, auth.MessageAuthFailed)
		return
	}

	sessionID, err := session.GenerateID()
	if err != nil {
		h.renderFailure(c, http.StatusInternalServerError, auth.MessageAuthFailed)
		return
	}

	exchanged := h.exchange(c.Request.Context(), sessionID, code, codeVerifier)

	outcome := <-h.callbacks.Resolve(c.Request.Context(), sessionID)
	if outcome.State == callback.Success {
		h.issueSession(c, sessionID)
		c.Redirect(http.StatusFound, outcome.Redirect)
		return
	}

	go h.discardLate(exchanged, sessionID)

	h.renderPage(c, http.StatusUnauthorized, outcome.Message, outcome.Redirect, outcome.RedirectAfter)
}

// exchange completes the federated sign-in in the background. It outlives
// the request so a client disconnect does not abort a half-done exchange.
func (h *Handler) exchange(parent context.Context, sessionID, code, codeVerifier string) <-chan error {
	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), h.exchangeTimeout)

	go func() {
		defer cancel()
		defer close(done)
		done <- h.sessions.CompleteFederatedSignIn(ctx, sessionID, code, codeVerifier)
	}()

	return done
}

// discardLate signs out a session whose exchange finished after the
// callback already reported failure. The browser never got its cookie.
func (h *Handler) discardLate(exchanged <-chan error, sessionID string) {
	if err := <-exchanged; err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.exchangeTimeout)
	defer cancel()

	if _, err := h.sessions.SignOut(ctx, sessionID); err != nil {
		logger.Warn("discard late session failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	logger.Info("discarded session from late code exchange", nil)
}

func (h *Handler) renderFailure(c *gin.Context, status int, message string) {
	h.renderPage(c, status, message, h.loginRoute, h.failureDelay)
}

// renderPage shows message and sends the browser to redirect after delay.
func (h *Handler) renderPage(c *gin.Context, status int, message, redirect string, delay time.Duration) {
	c.Data(status, "text/html; charset=utf-8", failurePage(message, redirect, delay))
}
