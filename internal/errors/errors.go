package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with Is.
var (
	// Authentication flow errors
	ErrInvalidScope          = errors.New("invalid scope")
	ErrUnknownOrExpiredState = errors.New("unknown or expired state")
	ErrProviderExchange      = errors.New("provider token exchange failed")

	// Session errors
	ErrInvalidSession   = errors.New("invalid session")
	ErrReauthRequired   = errors.New("reauthentication required")
	ErrInvalidPageToken = errors.New("invalid page token")

	// Provider transport errors
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// New is errors.New, re-exported so packages need a single errors import.
func New(text string) error {
	return errors.New(text)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
