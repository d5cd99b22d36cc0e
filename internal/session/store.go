package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Session is the server-side record behind the session cookie. It holds the
// token set issued by the user pool; the browser only ever sees the ID.
type Session struct {
	SessionID string `json:"session_id" dynamodbav:"session_id"`
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Username  string `json:"username" dynamodbav:"username"`
	Subject   string `json:"sub" dynamodbav:"sub"`
	Email     string `json:"email" dynamodbav:"email"`

	AccessToken     string    `json:"access_token" dynamodbav:"access_token"`
	IDToken         string    `json:"id_token" dynamodbav:"id_token"`
	RefreshToken    string    `json:"refresh_token" dynamodbav:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at" dynamodbav:"access_expires_at"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"` // absolute expiry
}

// AccessExpired reports whether the access token must be refreshed at now.
func (s *Session) AccessExpired(now time.Time) bool {
	return s.AccessToken == "" || !now.Before(s.AccessExpiresAt)
}

func (s Session) validate() error {
	if s.SessionID == "" || s.UserID == "" {
		return fmt.Errorf("session: missing session_id or user_id")
	}
	if time.Until(s.ExpiresAt) <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}
	return nil
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist or has expired.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

// GenerateID generates a cryptographically secure session ID.
// 32 bytes = 256 bits of entropy.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
