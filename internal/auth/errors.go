package auth

import "errors"

var (
	// ErrConfiguration is fatal: the identity client cannot be configured.
	ErrConfiguration = errors.New("identity client misconfigured")

	// ErrInvalidCredentials never reveals whether the account exists.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrConfirmation covers wrong or expired confirmation codes.
	ErrConfirmation = errors.New("confirmation failed")

	// ErrFederatedSignIn is returned when a provider redirect cannot complete.
	ErrFederatedSignIn = errors.New("federated sign-in failed")

	// ErrUnsupportedProvider aborts the pre-sign-up trigger.
	ErrUnsupportedProvider = errors.New("unsupported identity provider")

	// ErrIdentityService wraps network and validation failures reported
	// by the identity service.
	ErrIdentityService = errors.New("identity service error")
)

// User-visible messages. Provider error text is never shown.
const (
	MessageInvalidCredentials = "Invalid email or password."
	MessageSignUpFailed       = "An error occurred during sign up. Please try again."
	MessageConfirmFailed      = "The confirmation code is invalid or has expired."
	MessageAuthFailed         = "Authentication failed"
)
