package handler

import (
	"errors"
	"net/http"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/credentials"
	"auth-gateway/internal/auth/sessionmgr"

	"github.com/gin-gonic/gin"
)

type signUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := credentials.ValidateSignUp(req.Email, req.Password, req.GivenName, req.FamilyName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": credentials.UserMessage(err, auth.MessageSignUpFailed)})
		return
	}

	res, err := h.sessions.SignUp(c.Request.Context(), req.Email, req.Password, sessionmgr.Attributes{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": auth.MessageSignUpFailed})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":             "registered",
		"needs_confirmation": res.NeedsConfirmation,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := credentials.Validate(req.Email, req.Password); errors.Is(err, credentials.ErrMissingFields) {
		c.JSON(http.StatusBadRequest, gin.H{"error": credentials.UserMessage(err, "")})
		return
	}

	res, err := h.sessions.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Same text for every failure: wrong password and unknown user
		// must not be distinguishable.
		c.JSON(statusFor(err), gin.H{"error": auth.MessageInvalidCredentials})
		return
	}

	if !res.SignedIn {
		c.JSON(http.StatusAccepted, gin.H{
			"status":    "next_step",
			"next_step": res.NextStep,
		})
		return
	}

	h.issueSession(c, res.Session.SessionID)
	c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ResendCode(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.sessions.ResendConfirmationCode(c.Request.Context(), req.Email); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Could not resend the confirmation code."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "code_sent"})
}

// Confirm handles the link from the confirmation email.
func (h *Handler) Confirm(c *gin.Context) {
	username := c.Query("username")
	code := c.Query("code")
	if username == "" || code == "" {
		c.Redirect(http.StatusFound, h.loginRoute)
		return
	}

	status, err := h.sessions.ConfirmSignUp(c.Request.Context(), username, code)
	if err != nil {
		h.renderFailure(c, statusFor(err), auth.MessageConfirmFailed)
		return
	}

	switch status {
	case sessionmgr.ConfirmComplete:
		c.Redirect(http.StatusFound, h.loginRoute)
	default:
		c.Redirect(http.StatusFound, "/callback")
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrConfirmation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrIdentityService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
