// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for wallet session and transaction orchestration. Callers
// match with errors.Is so wrapped errors keep their kind.
var (
	ErrNoProvider          = errors.New("wallet provider not available")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrUnknownChain        = errors.New("chain not registered with provider")
	ErrNetworkSwitchFailed = errors.New("network switch failed")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrReverted            = errors.New("transaction reverted")
	ErrTimeout             = errors.New("confirmation timeout")
	ErrNetwork             = errors.New("network error")
	ErrCredentialNotFound  = errors.New("no stored credential")
)

// RemoteError is any non-success backend response other than a 401. The
// status code is preserved so callers can surface it.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Validationf builds a precondition failure that matches ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
