// Package linking implements the pre-sign-up trigger that attaches a new
// federated identity to an existing account with the same email instead of
// creating a duplicate.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// TriggerExternalProvider is the only trigger source the linker acts on.
const TriggerExternalProvider = "PreSignUp_ExternalProvider"

const alreadyLinkedMessage = "SourceUser is already linked to DestinationUser"

// Directory is the subset of the user pool admin API the linker uses.
type Directory interface {
	ListUsers(ctx context.Context, in *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminLinkProviderForUser(ctx context.Context, in *cip.AdminLinkProviderForUserInput, optFns ...func(*cip.Options)) (*cip.AdminLinkProviderForUserOutput, error)
}

// Link describes one federated identity attached to a pool account.
type Link struct {
	UserPoolID      string
	DestinationUser string
	Provider        string
	AttributeName   string
	AttributeValue  string
	LinkedAt        time.Time
}

// Ledger records completed links. Failures are logged, never fatal.
type Ledger interface {
	RecordLink(ctx context.Context, link Link) error
}

type Linker struct {
	dir    Directory
	ledger Ledger
	now    func() time.Time
}

// Option customizes a Linker.
type Option func(*Linker)

// WithLedger records every completed link.
func WithLedger(l Ledger) Option {
	return func(lk *Linker) { lk.ledger = l }
}

func New(dir Directory, opts ...Option) *Linker {
	l := &Linker{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handle is the Lambda handler. Returning an error aborts the sign-up.
func (l *Linker) Handle(
	ctx context.Context,
	event events.CognitoEventUserPoolsPreSignup,
) (events.CognitoEventUserPoolsPreSignup, error) {

	if event.TriggerSource != TriggerExternalProvider {
		return event, nil
	}

	email := event.Request.UserAttributes["email"]
	if email == "" {
		logger.Info("federated sign-up without email, not linking", map[string]any{
			"user_pool_id": event.UserPoolID,
		})
		return event, nil
	}

	regionOpt := func(o *cip.Options) {
		if event.Region != "" {
			o.Region = event.Region
		}
	}

	existing, err := l.dir.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(event.UserPoolID),
		Filter:     aws.String(emailFilter(email)),
	}, regionOpt)
	if err != nil {
		logger.Error("list users by email failed", map[string]any{
			"user_pool_id": event.UserPoolID,
			"error":        err.Error(),
		})
		return event, fmt.Errorf("list users: %w", err)
	}
	if len(existing.Users) == 0 {
		return event, nil
	}
	destination := aws.ToString(existing.Users[0].Username)

	p, subject, err := provider.FromFederatedUsername(event.UserName)
	if err != nil {
		logger.Error("federated sign-up from unsupported provider", map[string]any{
			"user_name": event.UserName,
		})
		return event, err
	}
	source, err := p.SourceAttribute(subject, email)
	if err != nil {
		return event, err
	}

	_, err = l.dir.AdminLinkProviderForUser(ctx, &cip.AdminLinkProviderForUserInput{
		UserPoolId: aws.String(event.UserPoolID),
		DestinationUser: &types.ProviderUserIdentifierType{
			ProviderName:           aws.String("Cognito"),
			ProviderAttributeValue: aws.String(destination),
		},
		SourceUser: &types.ProviderUserIdentifierType{
			ProviderName:           aws.String(p.Name()),
			ProviderAttributeName:  aws.String(source.Name),
			ProviderAttributeValue: aws.String(source.Value),
		},
	}, regionOpt)

	switch {
	case err == nil:
		logger.Info("linked federated identity", map[string]any{
			"destination": destination,
			"provider":    p.Name(),
		})
	case isAlreadyLinked(err):
		logger.Info("identities already linked", map[string]any{
			"destination": destination,
			"provider":    p.Name(),
		})
	default:
		logger.Error("link provider for user failed", map[string]any{
			"destination": destination,
			"provider":    p.Name(),
			"error":       err.Error(),
		})
		return event, fmt.Errorf("link provider: %w", err)
	}

	event.Response.AutoConfirmUser = true
	event.Response.AutoVerifyEmail = true

	l.record(ctx, Link{
		UserPoolID:      event.UserPoolID,
		DestinationUser: destination,
		Provider:        p.Name(),
		AttributeName:   source.Name,
		AttributeValue:  source.Value,
		LinkedAt:        l.now(),
	})

	return event, nil
}

func (l *Linker) record(ctx context.Context, link Link) {
	if l.ledger == nil {
		return
	}
	if err := l.ledger.RecordLink(ctx, link); err != nil {
		logger.Warn("link ledger write failed", map[string]any{
			"destination": link.DestinationUser,
			"error":       err.Error(),
		})
	}
}

func isAlreadyLinked(err error) bool {
	var ipe *types.InvalidParameterException
	return errors.As(err, &ipe) && strings.Contains(ipe.ErrorMessage(), alreadyLinkedMessage)
}

// emailFilter builds an exact-match ListUsers filter.
func emailFilter(email string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(email)
	return `email = "` + escaped + `"`
}
