// Package common holds the error, logging and retry helpers shared by pocket's
// packages.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedIn is returned when the rest remote is used without a stored session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrMissingConfig is returned when a required setting is empty.
	ErrMissingConfig = errors.New("missing configuration")
	// ErrInvalidConfig is returned when a setting has an unusable value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError carries a message meant for the terminal along with its cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.UserMessage
	}
	return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a message the CLI prints as is. err may be nil.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// IsRetryable reports whether another attempt at the failed operation could
// succeed. A RetryableError decides for itself; cancellation never retries;
// every other failure is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return !errors.Is(err, context.Canceled)
}
