package service

import (
	"errors"
	"strings"

	"github.com/oxedro/erp-client/internal/backend"
)

// Auth error kinds. Match with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionLookup      = errors.New("session lookup failed")
)

// Default user-facing messages.
const (
	MsgFillAllFields      = "Please fill all fields"
	MsgAccountNotFound    = "Account not found"
	MsgInvalidCredentials = "Invalid credentials"
)

// AuthError carries an error kind, the message shown to the user and the
// underlying cause.
type AuthError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newAuthError prefers the provider's own message when it sent one.
func newAuthError(kind error, fallback string, cause error) *AuthError {
	msg := fallback
	var apiErr *backend.APIError
	if errors.As(cause, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &AuthError{Kind: kind, Message: msg, Err: cause}
}

// ValidateCredentials rejects a blank unique id or password before any
// provider call.
func ValidateCredentials(uniqueID, password string) error {
	if strings.TrimSpace(uniqueID) == "" || strings.TrimSpace(password) == "" {
		return &AuthError{Kind: ErrValidation, Message: MsgFillAllFields}
	}
	return nil
}
