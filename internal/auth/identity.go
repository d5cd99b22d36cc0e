package auth

// Identity represents a normalized authenticated identity as asserted by
// the identity provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // "cognito" for pool users, e.g. "Google" for federated logins
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Username       string // pool username, e.g. "Google_1234" or the email alias
	Email          string
	EmailVerified  bool
	GivenName      string
	FamilyName     string
}

// User is the authenticated principal reported for a live session.
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Subject  string `json:"sub"`
	Email    string `json:"email"`
}
