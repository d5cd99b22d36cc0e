package hostedui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultScopes are the OAuth scopes requested from the hosted UI.
var DefaultScopes = []string{"email", oidc.ScopeOpenID, "profile"}

// Config describes the user pool app client and its hosted UI domain.
type Config struct {
	// Domain is the hosted UI domain, e.g.
	// example.auth.us-east-1.amazoncognito.com. A full URL is accepted too.
	Domain          string
	ClientID        string
	ClientSecret    string
	Issuer          string
	RedirectSignIn  string
	RedirectSignOut string
	Scopes          []string
}

// Tokens is the token set issued by the user pool.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// Client drives the authorization code flow against the hosted UI.
// It returns identity facts only; no session decisions are made here.
type Client struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	baseURL     string
	cfg         Config
}

// IssuerURL returns the OIDC issuer of a user pool.
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// JWKSURL returns the signing key endpoint for an issuer.
func JWKSURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
}

// New builds the hosted UI client. keySet verifies ID token signatures.
func New(cfg Config, keySet oidc.KeySet) (*Client, error) {
	if cfg.Domain == "" || cfg.ClientID == "" || cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: hosted ui config missing required fields", auth.ErrConfiguration)
	}
	if cfg.RedirectSignIn == "" || cfg.RedirectSignOut == "" {
		return nil, fmt.Errorf("%w: hosted ui redirect uris missing", auth.ErrConfiguration)
	}
	if keySet == nil {
		return nil, fmt.Errorf("%w: no key set for id token verification", auth.ErrConfiguration)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	baseURL := cfg.Domain
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid hosted ui domain: %v", auth.ErrConfiguration, err)
	}

	authStyle := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectSignIn,
		Endpoint: oauth2.Endpoint{
			AuthURL:   baseURL + "/oauth2/authorize",
			TokenURL:  baseURL + "/oauth2/token",
			AuthStyle: authStyle,
		},
		Scopes: cfg.Scopes,
	}

	verifier := oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
		ClientID: cfg.ClientID,
	})

	return &Client{
		oauthConfig: oauthCfg,
		verifier:    verifier,
		baseURL:     baseURL,
		cfg:         cfg,
	}, nil
}

// AuthCodeURL builds the authorization URL that sends the browser straight
// to the named identity provider, with PKCE parameters.
func (c *Client) AuthCodeURL(state string, codeChallenge string, identityProvider string) string {
	return c.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("identity_provider", identityProvider),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// LogoutURL ends the hosted UI session and returns the browser to the
// sign-out redirect.
func (c *Client) LogoutURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("logout_uri", c.cfg.RedirectSignOut)
	return c.baseURL + "/logout?" + q.Encode()
}

// Exchange swaps the authorization code for tokens and verifies the ID token.
func (c *Client) Exchange(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*Tokens, *auth.Identity, error) {

	token, err := c.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		logger.Error("hosted ui token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, nil, fmt.Errorf("%w: token exchange: %v", auth.ErrFederatedSignIn, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, fmt.Errorf("%w: hosted ui did not return id_token", auth.ErrFederatedSignIn)
	}

	identity, err := c.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", auth.ErrFederatedSignIn, err)
	}

	return &Tokens{
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, identity, nil
}

// flexBool accepts both JSON booleans and the "true"/"false" strings
// federated attribute mappings produce.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseBool(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

// VerifyIDToken validates signature, issuer, audience and expiry of a user
// pool ID token and returns the identity it asserts.
func (c *Client) VerifyIDToken(ctx context.Context, rawIDToken string) (*auth.Identity, error) {
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id_token verification failed: %w", err)
	}

	var claims struct {
		Subject       string   `json:"sub"`
		Email         string   `json:"email"`
		EmailVerified flexBool `json:"email_verified"`
		Username      string   `json:"cognito:username"`
		GivenName     string   `json:"given_name"`
		FamilyName    string   `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("id_token claims parse failed: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("id_token missing sub claim")
	}

	logger.Debug("id token verified", map[string]any{
		"issuer":        idToken.Issuer,
		"email_present": claims.Email != "",
		"expiry_unix":   idToken.Expiry.Unix(),
	})

	return &auth.Identity{
		Provider:       "cognito",
		ProviderUserID: claims.Subject,
		Username:       claims.Username,
		Email:          claims.Email,
		EmailVerified:  bool(claims.EmailVerified),
		GivenName:      claims.GivenName,
		FamilyName:     claims.FamilyName,
	}, nil
}

// String describes the configured endpoints without the client secret.
func (c *Client) String() string {
	out, _ := json.Marshal(map[string]any{
		"auth_url":  c.oauthConfig.Endpoint.AuthURL,
		"token_url": c.oauthConfig.Endpoint.TokenURL,
		"scopes":    c.oauthConfig.Scopes,
		"redirect":  c.oauthConfig.RedirectURL,
	})
	return string(out)
}
