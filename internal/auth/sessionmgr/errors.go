package sessionmgr

import (
	"errors"
	"fmt"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/logger"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

func is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// classifySignIn folds every credential-shaped failure into
// ErrInvalidCredentials so callers cannot tell a wrong password from an
// unknown or unconfirmed account.
func classifySignIn(err error) error {
	switch {
	case is[*types.NotAuthorizedException](err),
		is[*types.UserNotFoundException](err),
		is[*types.UserNotConfirmedException](err),
		is[*types.PasswordResetRequiredException](err),
		is[*types.InvalidParameterException](err):
		return auth.ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", auth.ErrIdentityService, err)
	}
}

func classifyConfirm(err error) error {
	switch {
	case is[*types.CodeMismatchException](err),
		is[*types.ExpiredCodeException](err),
		is[*types.NotAuthorizedException](err),
		is[*types.UserNotFoundException](err),
		is[*types.TooManyFailedAttemptsException](err):
		return fmt.Errorf("%w: %v", auth.ErrConfirmation, err)
	default:
		return fmt.Errorf("%w: %v", auth.ErrIdentityService, err)
	}
}

func classifyService(err error) error {
	return fmt.Errorf("%w: %v", auth.ErrIdentityService, err)
}

// fail logs an identity-service failure at the operation boundary and
// returns the translated error.
func fail(operation string, raw error, translated error) error {
	logger.Error("identity operation failed", map[string]any{
		"operation": operation,
		"error":     raw.Error(),
	})
	return translated
}
