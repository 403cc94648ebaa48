package errors

import (
	"errors"
	"fmt"
)

// Common error types for the LipVoice client
var (
	// Credential errors
	ErrNoSession       = errors.New("no session")
	ErrSessionExpired  = errors.New("session expired")
	ErrRefreshFailed   = errors.New("credential refresh failed")
	ErrNoGuestIdentity = errors.New("no guest identity")

	// Input errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join wraps a sentinel with the underlying cause so errors.Is matches both
func Join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
