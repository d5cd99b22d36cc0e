package sessionmgr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/hostedui"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/auth/resolver"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/metrics"
	"auth-gateway/internal/session"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityAPI is the subset of the user pool API the manager drives.
// *cognitoidentityprovider.Client satisfies it.
type IdentityAPI interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	GlobalSignOut(ctx context.Context, in *cip.GlobalSignOutInput, optFns ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
}

// Config holds the connection parameters for the user pool.
type Config struct {
	Region        string
	UserPoolID    string
	ClientID      string
	ClientSecret  string
	Domain        string
	DeploymentURL string
	SessionTTL    time.Duration

	// Issuer overrides the issuer derived from Region and UserPoolID.
	Issuer string
}

// Option customizes a Manager at construction.
type Option func(*Manager)

// WithKeySet replaces how the ID token key set is built.
func WithKeySet(fn func(ctx context.Context, jwksURL string) oidc.KeySet) Option {
	return func(m *Manager) { m.newKeySet = fn }
}

// WithResolver maps authenticated identities onto local user IDs.
func WithResolver(r resolver.Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the process-wide handle for every identity operation.
// Construct it once with New and share it by reference.
type Manager struct {
	cfg      Config
	api      IdentityAPI
	store    session.Store
	resolver resolver.Resolver

	newKeySet func(ctx context.Context, jwksURL string) oidc.KeySet
	now       func() time.Time

	mu         sync.Mutex
	configured bool
	ui         *hostedui.Client
}

// New builds the manager and configures it. A configuration failure is
// returned as ErrConfiguration and must not be suppressed.
func New(ctx context.Context, cfg Config, api IdentityAPI, store session.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:   cfg,
		api:   api,
		store: store,
		newKeySet: func(ctx context.Context, jwksURL string) oidc.KeySet {
			return oidc.NewRemoteKeySet(context.WithoutCancel(ctx), jwksURL)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.Configure(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Configure initializes the hosted UI client and key set. It runs at most
// once per Manager; later calls are no-ops. A failed attempt leaves the
// manager unconfigured.
func (m *Manager) Configure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.configured {
		return nil
	}

	if m.api == nil || m.store == nil {
		return fmt.Errorf("%w: identity api and session store are required", auth.ErrConfiguration)
	}
	if m.cfg.UserPoolID == "" || m.cfg.ClientID == "" || m.cfg.Domain == "" {
		return fmt.Errorf("%w: user pool id, client id and domain are required", auth.ErrConfiguration)
	}
	if m.cfg.Issuer == "" && m.cfg.Region == "" {
		return fmt.Errorf("%w: region is required", auth.ErrConfiguration)
	}
	if m.cfg.SessionTTL <= 0 {
		m.cfg.SessionTTL = 24 * time.Hour
	}

	deploymentURL := strings.TrimRight(m.cfg.DeploymentURL, "/")
	if deploymentURL == "" {
		deploymentURL = "http://localhost:3000"
	}

	issuer := m.cfg.Issuer
	if issuer == "" {
		issuer = hostedui.IssuerURL(m.cfg.Region, m.cfg.UserPoolID)
	}

	ui, err := hostedui.New(hostedui.Config{
		Domain:          m.cfg.Domain,
		ClientID:        m.cfg.ClientID,
		ClientSecret:    m.cfg.ClientSecret,
		Issuer:          issuer,
		RedirectSignIn:  deploymentURL + "/callback",
		RedirectSignOut: deploymentURL + "/login",
		Scopes:          hostedui.DefaultScopes,
	}, m.newKeySet(ctx, hostedui.JWKSURL(issuer)))
	if err != nil {
		logger.Error("identity client configuration failed", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	m.ui = ui
	m.configured = true

	logger.Info("identity client configured", map[string]any{
		"user_pool_id": m.cfg.UserPoolID,
		"issuer":       issuer,
	})
	return nil
}

func (m *Manager) hostedUI() (*hostedui.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return nil, fmt.Errorf("%w: not configured", auth.ErrConfiguration)
	}
	return m.ui, nil
}

// Attributes are the profile attributes collected at sign-up.
type Attributes struct {
	GivenName  string
	FamilyName string
}

// SignUpResult reports whether the new account still needs a
// confirmation step.
type SignUpResult struct {
	NeedsConfirmation bool
	UserSub           string
}

// SignUp requests account creation with the email as username.
func (m *Manager) SignUp(ctx context.Context, email string, password string, attrs Attributes) (*SignUpResult, error) {
	if _, err := m.hostedUI(); err != nil {
		return nil, err
	}

	userAttrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(email)},
	}
	if attrs.GivenName != "" {
		userAttrs = append(userAttrs, types.AttributeType{Name: aws.String("given_name"), Value: aws.String(attrs.GivenName)})
	}
	if attrs.FamilyName != "" {
		userAttrs = append(userAttrs, types.AttributeType{Name: aws.String("family_name"), Value: aws.String(attrs.FamilyName)})
	}

	out, err := m.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(m.cfg.ClientID),
		Username:       aws.String(email),
		Password:       aws.String(password),
		SecretHash:     m.secretHash(email),
		UserAttributes: userAttrs,
	})
	metrics.Observe("sign_up", err)
	if err != nil {
		return nil, fail("sign_up", err, classifyService(err))
	}

	return &SignUpResult{
		NeedsConfirmation: !out.UserConfirmed,
		UserSub:           aws.ToString(out.UserSub),
	}, nil
}

// ConfirmStatus is the outcome of a confirmation code submission.
type ConfirmStatus int

const (
	ConfirmComplete ConfirmStatus = iota
	ConfirmNeedsMoreSteps
)

// ConfirmSignUp submits an out-of-band confirmation code. A rejected code
// is terminal for this attempt.
func (m *Manager) ConfirmSignUp(ctx context.Context, username string, code string) (ConfirmStatus, error) {
	if _, err := m.hostedUI(); err != nil {
		return ConfirmNeedsMoreSteps, err
	}

	_, err := m.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(m.cfg.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       m.secretHash(username),
	})
	metrics.Observe("confirm_sign_up", err)
	if err != nil {
		return ConfirmNeedsMoreSteps, fail("confirm_sign_up", err, classifyConfirm(err))
	}
	return ConfirmComplete, nil
}

// ResendConfirmationCode re-triggers code delivery. Rate limiting is left
// to the user pool.
func (m *Manager) ResendConfirmationCode(ctx context.Context, email string) error {
	if _, err := m.hostedUI(); err != nil {
		return err
	}

	_, err := m.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(m.cfg.ClientID),
		Username:   aws.String(email),
		SecretHash: m.secretHash(email),
	})
	metrics.Observe("resend_confirmation_code", err)
	if err != nil {
		return fail("resend_confirmation_code", err, classifyService(err))
	}
	return nil
}

// SignInResult reports whether the password sign-in produced a session.
// NextStep names the pending challenge when SignedIn is false.
type SignInResult struct {
	SignedIn bool
	NextStep string
	Session  *session.Session
}

// SignInWithPassword authenticates with USER_PASSWORD_AUTH and persists a
// new session. Every credential failure is ErrInvalidCredentials.
func (m *Manager) SignInWithPassword(ctx context.Context, email string, password string) (*SignInResult, error) {
	ui, err := m.hostedUI()
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if h := m.secretHash(email); h != nil {
		params["SECRET_HASH"] = *h
	}

	out, err := m.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(m.cfg.ClientID),
		AuthParameters: params,
	})
	metrics.Observe("sign_in_password", err)
	if err != nil {
		return nil, fail("sign_in_password", err, classifySignIn(err))
	}

	if out.ChallengeName != "" || out.AuthenticationResult == nil {
		logger.Info("password sign-in requires another step", map[string]any{
			"challenge": string(out.ChallengeName),
		})
		return &SignInResult{SignedIn: false, NextStep: string(out.ChallengeName)}, nil
	}

	res := out.AuthenticationResult
	identity, err := ui.VerifyIDToken(ctx, aws.ToString(res.IdToken))
	if err != nil {
		return nil, fail("sign_in_password", err, classifyService(err))
	}

	sessionID, err := session.GenerateID()
	if err != nil {
		return nil, err
	}

	sess, err := m.createSession(ctx, sessionID, hostedui.Tokens{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		Expiry:       m.now().Add(time.Duration(res.ExpiresIn) * time.Second),
	}, identity)
	if err != nil {
		return nil, err
	}

	return &SignInResult{SignedIn: true, Session: sess}, nil
}

// FederatedSignInURL returns the hosted UI URL that redirects the browser
// to the external provider. Control comes back through the callback route.
func (m *Manager) FederatedSignInURL(p provider.Provider, state string, codeChallenge string) (string, error) {
	ui, err := m.hostedUI()
	if err != nil {
		return "", err
	}
	if p == provider.Unsupported {
		return "", fmt.Errorf("%w: %s", auth.ErrUnsupportedProvider, p.Name())
	}
	metrics.AuthOperations.WithLabelValues("sign_in_federated_"+strings.ToLower(p.Name()), metrics.OutcomeSuccess).Inc()
	return ui.AuthCodeURL(state, codeChallenge, p.Name()), nil
}

// CompleteFederatedSignIn exchanges the authorization code the provider
// redirected back with and stores the session under sessionID.
func (m *Manager) CompleteFederatedSignIn(ctx context.Context, sessionID string, code string, codeVerifier string) error {
	ui, err := m.hostedUI()
	if err != nil {
		return err
	}

	tokens, identity, err := ui.Exchange(ctx, code, codeVerifier)
	metrics.Observe("complete_federated_sign_in", err)
	if err != nil {
		return fail("complete_federated_sign_in", err, err)
	}

	if _, err := m.createSession(ctx, sessionID, *tokens, identity); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrFederatedSignIn, err)
	}
	return nil
}

// SignOut drops the local session and, while the access token is still
// valid, signs the user out of every device. The returned URL ends the
// hosted UI session.
func (m *Manager) SignOut(ctx context.Context, sessionID string) (string, error) {
	ui, err := m.hostedUI()
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		return ui.LogoutURL(), nil
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if sess != nil && !sess.AccessExpired(m.now()) {
		_, gerr := m.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{
			AccessToken: aws.String(sess.AccessToken),
		})
		metrics.Observe("global_sign_out", gerr)
		if gerr != nil {
			logger.Warn("global sign-out failed", map[string]any{
				"error": gerr.Error(),
			})
		}
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return "", err
	}
	return ui.LogoutURL(), nil
}

// CurrentSession reports who is authenticated under sessionID. A missing,
// expired or revoked session is (nil, nil), never an error. An expired
// access token is refreshed transparently.
func (m *Manager) CurrentSession(ctx context.Context, sessionID string) (*auth.User, error) {
	if _, err := m.hostedUI(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, nil
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !m.now().Before(sess.ExpiresAt) {
		metrics.AuthOperations.WithLabelValues("current_session", metrics.OutcomeAbsent).Inc()
		return nil, nil
	}

	if sess.AccessExpired(m.now()) {
		sess, err = m.refresh(ctx, sess)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			metrics.AuthOperations.WithLabelValues("current_session", metrics.OutcomeAbsent).Inc()
			return nil, nil
		}
	}

	metrics.AuthOperations.WithLabelValues("current_session", metrics.OutcomeSuccess).Inc()
	return &auth.User{
		UserID:   sess.UserID,
		Username: sess.Username,
		Subject:  sess.Subject,
		Email:    sess.Email,
	}, nil
}

// refresh trades the refresh token for a new access token. A rejected
// refresh token destroys the session and yields (nil, nil).
func (m *Manager) refresh(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if sess.RefreshToken == "" {
		return nil, m.store.Delete(ctx, sess.SessionID)
	}

	params := map[string]string{"REFRESH_TOKEN": sess.RefreshToken}
	if h := m.secretHash(sess.Username); h != nil {
		params["SECRET_HASH"] = *h
	}

	out, err := m.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(m.cfg.ClientID),
		AuthParameters: params,
	})
	metrics.Observe("refresh_session", err)
	if err != nil {
		if is[*types.NotAuthorizedException](err) {
			logger.Info("refresh token rejected, dropping session", nil)
			return nil, m.store.Delete(ctx, sess.SessionID)
		}
		return nil, fail("refresh_session", err, classifyService(err))
	}
	if out.AuthenticationResult == nil {
		return nil, m.store.Delete(ctx, sess.SessionID)
	}

	res := out.AuthenticationResult
	refreshed := *sess
	refreshed.AccessToken = aws.ToString(res.AccessToken)
	if idToken := aws.ToString(res.IdToken); idToken != "" {
		refreshed.IDToken = idToken
	}
	if rt := aws.ToString(res.RefreshToken); rt != "" {
		refreshed.RefreshToken = rt
	}
	fallback := m.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	refreshed.AccessExpiresAt = accessExpiry(refreshed.AccessToken, fallback)

	if err := m.store.Update(ctx, refreshed); err != nil {
		return nil, err
	}
	return &refreshed, nil
}

func (m *Manager) createSession(
	ctx context.Context,
	sessionID string,
	tokens hostedui.Tokens,
	identity *auth.Identity,
) (*session.Session, error) {

	userID := identity.ProviderUserID
	if m.resolver != nil {
		resolved, err := m.resolver.Resolve(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		userID = resolved
	}

	username := identity.Username
	if username == "" {
		username = identity.Email
	}

	now := m.now()
	sess := session.Session{
		SessionID:       sessionID,
		UserID:          userID,
		Username:        username,
		Subject:         identity.ProviderUserID,
		Email:           identity.Email,
		AccessToken:     tokens.AccessToken,
		IDToken:         tokens.IDToken,
		RefreshToken:    tokens.RefreshToken,
		AccessExpiresAt: accessExpiry(tokens.AccessToken, tokens.Expiry),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.cfg.SessionTTL),
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	logger.Info("session created", map[string]any{
		"user_id": userID,
	})
	return &sess, nil
}

// accessExpiry reads exp from the access token. The token came straight
// from the user pool over TLS, so its signature is not re-checked here.
func accessExpiry(accessToken string, fallback time.Time) time.Time {
	if accessToken == "" {
		return fallback
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return fallback
	}
	if claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}

// secretHash computes SECRET_HASH for app clients that have a secret.
func (m *Manager) secretHash(username string) *string {
	if m.cfg.ClientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(m.cfg.ClientSecret))
	mac.Write([]byte(username + m.cfg.ClientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
