package sessionmgr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/session"
	"auth-gateway/internal/testutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_pool"
	testClientID = "client-id"
)

type fakeAPI struct {
	signUp        func(*cip.SignUpInput) (*cip.SignUpOutput, error)
	confirmSignUp func(*cip.ConfirmSignUpInput) (*cip.ConfirmSignUpOutput, error)
	resend        func(*cip.ResendConfirmationCodeInput) (*cip.ResendConfirmationCodeOutput, error)
	initiateAuth  func(*cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error)
	globalSignOut func(*cip.GlobalSignOutInput) (*cip.GlobalSignOutOutput, error)
}

func (f *fakeAPI) SignUp(_ context.Context, in *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	return f.signUp(in)
}

func (f *fakeAPI) ConfirmSignUp(_ context.Context, in *cip.ConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error) {
	return f.confirmSignUp(in)
}

func (f *fakeAPI) ResendConfirmationCode(_ context.Context, in *cip.ResendConfirmationCodeInput, _ ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error) {
	return f.resend(in)
}

func (f *fakeAPI) InitiateAuth(_ context.Context, in *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	return f.initiateAuth(in)
}

func (f *fakeAPI) GlobalSignOut(_ context.Context, in *cip.GlobalSignOutInput, _ ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error) {
	return f.globalSignOut(in)
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]session.Session{}}
}

func (s *memStore) Create(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *memStore) Update(ctx context.Context, sess session.Session) error {
	return s.Create(ctx, sess)
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type harness struct {
	m           *Manager
	api         *fakeAPI
	store       *memStore
	issuer      *testutil.TokenIssuer
	keySetCalls int
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		api:    &fakeAPI{},
		store:  newMemStore(),
		issuer: testutil.NewTokenIssuer(t, testIssuer, testClientID),
	}
	cfg := Config{
		Region:        "us-east-1",
		UserPoolID:    "us-east-1_pool",
		ClientID:      testClientID,
		Domain:        "example.auth.us-east-1.amazoncognito.com",
		DeploymentURL: "http://localhost:3000",
		Issuer:        testIssuer,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New(context.Background(), cfg, h.api, h.store,
		WithKeySet(func(context.Context, string) oidc.KeySet {
			h.keySetCalls++
			return h.issuer.KeySet()
		}),
	)
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) authResult(t *testing.T, email string) *types.AuthenticationResultType {
	return &types.AuthenticationResultType{
		AccessToken:  aws.String(h.issuer.AccessToken(t, "sub-1", email, time.Now().Add(time.Hour))),
		IdToken:      aws.String(h.issuer.IDToken(t, "sub-1", map[string]any{"email": email, "cognito:username": "sub-1"})),
		RefreshToken: aws.String("refresh-1"),
		ExpiresIn:    3600,
		TokenType:    aws.String("Bearer"),
	}
}

func TestConfigure_Idempotent(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, h.m.Configure(context.Background()))
	}
	assert.Equal(t, 1, h.keySetCalls)
}

func TestNew_MisconfigurationFailsLoudly(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: testClientID}, &fakeAPI{}, newMemStore())
	require.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = New(context.Background(), Config{
		UserPoolID: "pool", ClientID: testClientID, Domain: "d",
	}, &fakeAPI{}, newMemStore())
	require.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestUnconfiguredManagerRejectsOperations(t *testing.T) {
	var m Manager

	_, err := m.SignInWithPassword(context.Background(), "a@x.com", "p@ssw0rD")
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = m.CurrentSession(context.Background(), "sid")
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestCurrentSession_AbsentIsNotAnError(t *testing.T) {
	h := newHarness(t, nil)

	user, err := h.m.CurrentSession(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = h.m.CurrentSession(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSignInWithPassword_EnumerationResistant(t *testing.T) {
	h := newHarness(t, nil)

	h.api.initiateAuth = func(in *cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		if in.AuthParameters["USERNAME"] == "known@x.com" {
			return nil, &types.NotAuthorizedException{Message: aws.String("Incorrect username or password.")}
		}
		return nil, &types.UserNotFoundException{Message: aws.String("User does not exist.")}
	}

	_, wrongPassword := h.m.SignInWithPassword(context.Background(), "known@x.com", "WrongPass1")
	_, noSuchUser := h.m.SignInWithPassword(context.Background(), "ghost@x.com", "WrongPass1")

	require.ErrorIs(t, wrongPassword, auth.ErrInvalidCredentials)
	require.ErrorIs(t, noSuchUser, auth.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), noSuchUser.Error())
}

func TestSignInWithPassword_UnconfirmedUserLooksLikeBadPassword(t *testing.T) {
	h := newHarness(t, nil)
	h.api.initiateAuth = func(*cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		return nil, &types.UserNotConfirmedException{Message: aws.String("User is not confirmed.")}
	}

	_, err := h.m.SignInWithPassword(context.Background(), "a@x.com", "p@ssw0rD")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignInWithPassword_ServiceFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.api.initiateAuth = func(*cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		return nil, &types.InternalErrorException{Message: aws.String("boom")}
	}

	_, err := h.m.SignInWithPassword(context.Background(), "a@x.com", "p@ssw0rD")
	assert.ErrorIs(t, err, auth.ErrIdentityService)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignInWithPassword_CreatesSession(t *testing.T) {
	h := newHarness(t, nil)

	h.api.initiateAuth = func(in *cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		assert.Equal(t, types.AuthFlowTypeUserPasswordAuth, in.AuthFlow)
		assert.Equal(t, "p@ssw0rD", in.AuthParameters["PASSWORD"])
		_, hasHash := in.AuthParameters["SECRET_HASH"]
		assert.False(t, hasHash)
		return &cip.InitiateAuthOutput{AuthenticationResult: h.authResult(t, "a@x.com")}, nil
	}

	res, err := h.m.SignInWithPassword(context.Background(), "a@x.com", "p@ssw0rD")
	require.NoError(t, err)
	require.True(t, res.SignedIn)
	require.NotNil(t, res.Session)
	assert.Equal(t, "sub-1", res.Session.UserID)
	assert.Equal(t, "refresh-1", res.Session.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.Session.AccessExpiresAt, time.Minute)

	user, err := h.m.CurrentSession(context.Background(), res.Session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "sub-1", user.Subject)
}

func TestSignInWithPassword_Challenge(t *testing.T) {
	h := newHarness(t, nil)
	h.api.initiateAuth = func(*cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		return &cip.InitiateAuthOutput{
			ChallengeName: types.ChallengeNameTypeNewPasswordRequired,
			Session:       aws.String("challenge-session"),
		}, nil
	}

	res, err := h.m.SignInWithPassword(context.Background(), "a@x.com", "p@ssw0rD")
	require.NoError(t, err)
	assert.False(t, res.SignedIn)
	assert.Equal(t, "NEW_PASSWORD_REQUIRED", res.NextStep)
	assert.Empty(t, h.store.sessions)
}

func TestSignUp(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ClientSecret = "shh" })

	h.api.signUp = func(in *cip.SignUpInput) (*cip.SignUpOutput, error) {
		assert.Equal(t, "a@x.com", aws.ToString(in.Username))

		mac := hmac.New(sha256.New, []byte("shh"))
		mac.Write([]byte("a@x.com" + testClientID))
		assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), aws.ToString(in.SecretHash))

		attrs := map[string]string{}
		for _, a := range in.UserAttributes {
			attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
		}
		assert.Equal(t, map[string]string{
			"email":       "a@x.com",
			"given_name":  "Ada",
			"family_name": "Lovelace",
		}, attrs)

		return &cip.SignUpOutput{UserConfirmed: false, UserSub: aws.String("sub-1")}, nil
	}

	res, err := h.m.SignUp(context.Background(), "a@x.com", "p@ssw0rD", Attributes{GivenName: "Ada", FamilyName: "Lovelace"})
	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, "sub-1", res.UserSub)
}

func TestSignUp_ServiceError(t *testing.T) {
	h := newHarness(t, nil)
	h.api.signUp = func(*cip.SignUpInput) (*cip.SignUpOutput, error) {
		return nil, &types.UsernameExistsException{Message: aws.String("exists")}
	}

	_, err := h.m.SignUp(context.Background(), "a@x.com", "p@ssw0rD", Attributes{})
	assert.ErrorIs(t, err, auth.ErrIdentityService)
}

func TestConfirmSignUp(t *testing.T) {
	h := newHarness(t, nil)

	h.api.confirmSignUp = func(in *cip.ConfirmSignUpInput) (*cip.ConfirmSignUpOutput, error) {
		if aws.ToString(in.ConfirmationCode) == "123456" {
			return &cip.ConfirmSignUpOutput{}, nil
		}
		return nil, &types.CodeMismatchException{Message: aws.String("Invalid verification code provided")}
	}

	status, err := h.m.ConfirmSignUp(context.Background(), "a@x.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, ConfirmComplete, status)

	status, err = h.m.ConfirmSignUp(context.Background(), "a@x.com", "000000")
	require.ErrorIs(t, err, auth.ErrConfirmation)
	assert.Equal(t, ConfirmNeedsMoreSteps, status)
}

func TestConfirmSignUp_ExpiredCode(t *testing.T) {
	h := newHarness(t, nil)
	h.api.confirmSignUp = func(*cip.ConfirmSignUpInput) (*cip.ConfirmSignUpOutput, error) {
		return nil, &types.ExpiredCodeException{Message: aws.String("expired")}
	}

	_, err := h.m.ConfirmSignUp(context.Background(), "a@x.com", "123456")
	assert.ErrorIs(t, err, auth.ErrConfirmation)
}

func TestResendConfirmationCode(t *testing.T) {
	h := newHarness(t, nil)
	var calls int
	h.api.resend = func(in *cip.ResendConfirmationCodeInput) (*cip.ResendConfirmationCodeOutput, error) {
		calls++
		assert.Equal(t, "a@x.com", aws.ToString(in.Username))
		return &cip.ResendConfirmationCodeOutput{}, nil
	}

	require.NoError(t, h.m.ResendConfirmationCode(context.Background(), "a@x.com"))
	require.NoError(t, h.m.ResendConfirmationCode(context.Background(), "a@x.com"))
	assert.Equal(t, 2, calls)
}

func seedSession(t *testing.T, h *harness, accessExpiry time.Time) session.Session {
	t.Helper()
	now := time.Now()
	sess := session.Session{
		SessionID:       "sid-1",
		UserID:          "user-1",
		Username:        "sub-1",
		Subject:         "sub-1",
		Email:           "a@x.com",
		AccessToken:     h.issuer.AccessToken(t, "sub-1", "sub-1", accessExpiry),
		RefreshToken:    "refresh-1",
		AccessExpiresAt: accessExpiry,
		CreatedAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}
	require.NoError(t, h.store.Create(context.Background(), sess))
	return sess
}

func TestCurrentSession_RefreshesExpiredAccessToken(t *testing.T) {
	h := newHarness(t, nil)
	seedSession(t, h, time.Now().Add(-time.Minute))

	fresh := h.issuer.AccessToken(t, "sub-1", "sub-1", time.Now().Add(time.Hour))
	h.api.initiateAuth = func(in *cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		assert.Equal(t, types.AuthFlowTypeRefreshTokenAuth, in.AuthFlow)
		assert.Equal(t, "refresh-1", in.AuthParameters["REFRESH_TOKEN"])
		return &cip.InitiateAuthOutput{AuthenticationResult: &types.AuthenticationResultType{
			AccessToken: aws.String(fresh),
			ExpiresIn:   3600,
		}}, nil
	}

	user, err := h.m.CurrentSession(context.Background(), "sid-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.UserID)

	stored := h.store.sessions["sid-1"]
	assert.Equal(t, fresh, stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.True(t, stored.AccessExpiresAt.After(time.Now()))
}

func TestCurrentSession_RevokedRefreshTokenIsAbsent(t *testing.T) {
	h := newHarness(t, nil)
	seedSession(t, h, time.Now().Add(-time.Minute))

	h.api.initiateAuth = func(*cip.InitiateAuthInput) (*cip.InitiateAuthOutput, error) {
		return nil, &types.NotAuthorizedException{Message: aws.String("Refresh Token has been revoked")}
	}

	user, err := h.m.CurrentSession(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NotContains(t, h.store.sessions, "sid-1")
}

func TestCurrentSession_PastAbsoluteExpiryIsAbsent(t *testing.T) {
	h := newHarness(t, nil)
	sess := seedSession(t, h, time.Now().Add(time.Hour))
	sess.ExpiresAt = time.Now().Add(-time.Second)
	h.store.sessions["sid-1"] = sess

	user, err := h.m.CurrentSession(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, nil)
	sess := seedSession(t, h, time.Now().Add(time.Hour))

	var revoked string
	h.api.globalSignOut = func(in *cip.GlobalSignOutInput) (*cip.GlobalSignOutOutput, error) {
		revoked = aws.ToString(in.AccessToken)
		return &cip.GlobalSignOutOutput{}, nil
	}

	logoutURL, err := h.m.SignOut(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, revoked)
	assert.NotContains(t, h.store.sessions, "sid-1")

	u, err := url.Parse(logoutURL)
	require.NoError(t, err)
	assert.Equal(t, "/logout", u.Path)
	assert.Equal(t, "http://localhost:3000/login", u.Query().Get("logout_uri"))
}

func TestSignOut_RemoteFailureStillClearsLocalSession(t *testing.T) {
	h := newHarness(t, nil)
	seedSession(t, h, time.Now().Add(time.Hour))

	h.api.globalSignOut = func(*cip.GlobalSignOutInput) (*cip.GlobalSignOutOutput, error) {
		return nil, &types.NotAuthorizedException{Message: aws.String("Access Token has been revoked")}
	}

	_, err := h.m.SignOut(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.NotContains(t, h.store.sessions, "sid-1")
}

func TestFederatedSignInURL(t *testing.T) {
	h := newHarness(t, nil)

	raw, err := h.m.FederatedSignInURL(provider.Microsoft, "state", "challenge")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Microsoft", u.Query().Get("identity_provider"))
	assert.Equal(t, "http://localhost:3000/callback", u.Query().Get("redirect_uri"))

	_, err = h.m.FederatedSignInURL(provider.Unsupported, "state", "challenge")
	assert.ErrorIs(t, err, auth.ErrUnsupportedProvider)
}

func TestCompleteFederatedSignIn(t *testing.T) {
	issuer := testutil.NewTokenIssuer(t, testIssuer, testClientID)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  issuer.AccessToken(t, "sub-9", "Google_9", time.Now().Add(time.Hour)),
			"id_token":      issuer.IDToken(t, "sub-9", map[string]any{"email": "g@x.com", "cognito:username": "Google_9"}),
			"refresh_token": "refresh-9",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := newMemStore()
	m, err := New(context.Background(), Config{
		UserPoolID:    "us-east-1_pool",
		ClientID:      testClientID,
		Domain:        srv.URL,
		Issuer:        testIssuer,
		DeploymentURL: "http://localhost:3000",
	}, &fakeAPI{}, store, WithKeySet(func(context.Context, string) oidc.KeySet { return issuer.KeySet() }))
	require.NoError(t, err)

	require.NoError(t, m.CompleteFederatedSignIn(context.Background(), "sid-fed", "code", "verifier"))

	user, err := m.CurrentSession(context.Background(), "sid-fed")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Google_9", user.Username)
	assert.Equal(t, "g@x.com", user.Email)
}

func TestAccessExpiry(t *testing.T) {
	fallback := time.Unix(1000, 0)
	assert.Equal(t, fallback, accessExpiry("", fallback))
	assert.Equal(t, fallback, accessExpiry("not-a-jwt", fallback))

	issuer := testutil.NewTokenIssuer(t, testIssuer, testClientID)
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	assert.True(t, exp.Equal(accessExpiry(issuer.AccessToken(t, "s", "u", exp), fallback)))
}
