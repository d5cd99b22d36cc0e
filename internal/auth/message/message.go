// Package message implements the custom message trigger that replaces the
// default sign-up verification email with a branded one carrying a direct
// confirmation link.
package message

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"auth-gateway/internal/logger"

	"github.com/aws/aws-lambda-go/events"
)

const TriggerSignUp = "CustomMessage_SignUp"

type Config struct {
	AppName       string
	DeploymentURL string
}

type Customizer struct {
	cfg Config
}

func New(cfg Config) *Customizer {
	cfg.DeploymentURL = strings.TrimRight(cfg.DeploymentURL, "/")
	return &Customizer{cfg: cfg}
}

// Handle is the Lambda handler.
func (c *Customizer) Handle(
	_ context.Context,
	event events.CognitoEventUserPoolsCustomMessage,
) (events.CognitoEventUserPoolsCustomMessage, error) {

	if event.TriggerSource != TriggerSignUp {
		return event, nil
	}

	email := attribute(event.Request.UserAttributes, "email")
	givenName := attribute(event.Request.UserAttributes, "given_name")
	link := c.ConfirmLink(email, event.Request.CodeParameter)

	event.Response.EmailSubject = fmt.Sprintf("Welcome to %s, %s!", c.cfg.AppName, givenName)
	event.Response.EmailMessage = fmt.Sprintf(
		"Hi %s, welcome to %s! Please verify your email address by clicking this link: %s",
		givenName, c.cfg.AppName, link,
	)

	logger.Info("custom sign-up message built", map[string]any{
		"user_pool_id": event.UserPoolID,
	})
	return event, nil
}

// ConfirmLink builds the confirmation URL. code is inserted verbatim: in a
// trigger it is the {####} placeholder the pool substitutes after we return.
func (c *Customizer) ConfirmLink(email string, code string) string {
	return c.cfg.DeploymentURL + "/confirm?username=" + url.QueryEscape(email) + "&code=" + code
}

func attribute(attrs map[string]interface{}, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
