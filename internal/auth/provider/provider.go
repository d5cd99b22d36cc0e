package provider

import (
	"fmt"
	"strings"

	"auth-gateway/internal/auth"
)

// Provider is the closed set of federated identity providers configured on
// the user pool. The zero value is Unsupported.
type Provider int

const (
	Unsupported Provider = iota
	Google
	Microsoft
)

// Name returns the identity provider name as registered on the user pool.
// It is also the prefix Cognito puts on federated usernames.
func (p Provider) Name() string {
	switch p {
	case Google:
		return "Google"
	case Microsoft:
		return "Microsoft"
	default:
		return "unsupported"
	}
}

func (p Provider) String() string { return p.Name() }

// Parse maps a provider name onto the enum. Matching ignores case because
// the pool lowercases usernames in some trigger payloads.
func Parse(name string) (Provider, error) {
	switch {
	case strings.EqualFold(name, "Google"):
		return Google, nil
	case strings.EqualFold(name, "Microsoft"):
		return Microsoft, nil
	default:
		return Unsupported, fmt.Errorf("%w: %q", auth.ErrUnsupportedProvider, name)
	}
}

// FromFederatedUsername splits a federated username such as
// "Google_1234567890" into its provider and provider-scoped subject.
func FromFederatedUsername(username string) (Provider, string, error) {
	prefix, subject, _ := strings.Cut(username, "_")
	p, err := Parse(prefix)
	if err != nil {
		return Unsupported, "", err
	}
	return p, subject, nil
}

// LinkAttribute identifies a federated user for AdminLinkProviderForUser.
type LinkAttribute struct {
	Name  string
	Value string
}

// SourceAttribute returns the attribute the provider is linked by.
// Google links by the pool subject, the Microsoft OIDC provider by email.
func (p Provider) SourceAttribute(subject string, email string) (LinkAttribute, error) {
	switch p {
	case Google:
		return LinkAttribute{Name: "Cognito_Subject", Value: subject}, nil
	case Microsoft:
		return LinkAttribute{Name: "email", Value: email}, nil
	default:
		return LinkAttribute{}, fmt.Errorf("%w: %s", auth.ErrUnsupportedProvider, p.Name())
	}
}
