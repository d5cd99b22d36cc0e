// Package callback resolves the post-redirect callback of a federated
// sign-in: wait a fixed grace period for the token exchange to land, then
// check once for a session. There is no retry loop; an exchange slower
// than the grace period is indistinguishable from a failure.
package callback

import (
	"context"
	"errors"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/metrics"
)

// State of a callback resolution.
type State int

const (
	Pending State = iota
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// SessionChecker is satisfied by the session manager.
type SessionChecker interface {
	CurrentSession(ctx context.Context, sessionID string) (*auth.User, error)
}

// Config holds the fixed timings and navigation targets.
type Config struct {
	GracePeriod  time.Duration
	FailureDelay time.Duration
	LandingRoute string
	LoginRoute   string
}

// DefaultConfig matches the browser flow: 1s grace, 2s on the error page.
func DefaultConfig() Config {
	return Config{
		GracePeriod:  time.Second,
		FailureDelay: 2 * time.Second,
		LandingRoute: "/classes",
		LoginRoute:   "/login",
	}
}

// Outcome is delivered exactly once per resolution.
type Outcome struct {
	State State
	User  *auth.User

	// Message is shown to the user on failure.
	Message string

	// Redirect is where to navigate, after RedirectAfter has elapsed.
	Redirect      string
	RedirectAfter time.Duration

	Err error
}

var errNoSession = errors.New("no session after grace period")

type Resolver struct {
	sessions SessionChecker
	cfg      Config
}

func New(sessions SessionChecker, cfg Config) *Resolver {
	return &Resolver{sessions: sessions, cfg: cfg}
}

// Resolve starts a single-shot timer for the grace period and then checks
// for a session. The returned channel yields one Outcome and is closed.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) <-chan Outcome {
	out := make(chan Outcome, 1)

	go func() {
		defer close(out)

		timer := time.NewTimer(r.cfg.GracePeriod)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			out <- r.failed(ctx.Err())
			return
		case <-timer.C:
		}

		user, err := r.sessions.CurrentSession(ctx, sessionID)
		switch {
		case err != nil:
			out <- r.failed(err)
		case user == nil:
			out <- r.failed(errNoSession)
		default:
			metrics.CallbackResolutions.WithLabelValues(Success.String()).Inc()
			out <- Outcome{
				State:    Success,
				User:     user,
				Redirect: r.cfg.LandingRoute,
			}
		}
	}()

	return out
}

func (r *Resolver) failed(err error) Outcome {
	logger.Warn("callback resolution failed", map[string]any{
		"error": err.Error(),
	})
	metrics.CallbackResolutions.WithLabelValues(Failed.String()).Inc()
	return Outcome{
		State:         Failed,
		Message:       auth.MessageAuthFailed,
		Redirect:      r.cfg.LoginRoute,
		RedirectAfter: r.cfg.FailureDelay,
		Err:           err,
	}
}
