// Package testutil mints user pool style tokens for tests.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs ID and access tokens the way a user pool does.
type TokenIssuer struct {
	Key      *rsa.PrivateKey
	Issuer   string
	ClientID string
}

func NewTokenIssuer(t testing.TB, issuer string, clientID string) *TokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &TokenIssuer{Key: key, Issuer: issuer, ClientID: clientID}
}

// KeySet verifies tokens signed by this issuer.
func (i *TokenIssuer) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&i.Key.PublicKey}}
}

// IDToken signs an ID token for sub with the given extra claims.
func (i *TokenIssuer) IDToken(t testing.TB, sub string, extra map[string]any) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":       i.Issuer,
		"aud":       i.ClientID,
		"sub":       sub,
		"token_use": "id",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return i.sign(t, claims)
}

// AccessToken signs an access token expiring at exp.
func (i *TokenIssuer) AccessToken(t testing.TB, sub string, username string, exp time.Time) string {
	t.Helper()
	return i.sign(t, jwt.MapClaims{
		"iss":       i.Issuer,
		"client_id": i.ClientID,
		"sub":       sub,
		"username":  username,
		"token_use": "access",
		"iat":       time.Now().Unix(),
		"exp":       exp.Unix(),
	})
}

func (i *TokenIssuer) sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.Key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
