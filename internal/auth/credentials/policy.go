package credentials

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// MinPasswordLength mirrors the user pool password policy.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError carries a message that is safe to render to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrMissingFields   = &ValidationError{"Email and password are required."}
	ErrInvalidEmail    = &ValidationError{"Invalid email address format."}
	ErrWeakPassword    = &ValidationError{"Password must be at least 8 characters long and contain at least one uppercase letter, one lowercase letter, and one number."}
	ErrMissingFullName = &ValidationError{"First name and last name are required."}
)

// UserMessage returns the user-facing text for a validation failure,
// or fallback for any other error.
func UserMessage(err error, fallback string) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return fallback
}

// Validate checks an email/password pair before it is sent to the user pool.
func Validate(email string, password string) error {
	if email == "" || password == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return ValidatePassword(password)
}

// ValidatePassword enforces length plus upper, lower and digit classes.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r) && r <= '9':
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}

// ValidateSignUp adds the profile name requirement used by self sign-up.
func ValidateSignUp(email, password, givenName, familyName string) error {
	if strings.TrimSpace(givenName) == "" || strings.TrimSpace(familyName) == "" {
		return ErrMissingFullName
	}
	return Validate(email, password)
}
