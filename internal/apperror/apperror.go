// Package apperror defines the application's error taxonomy.
//
// Every layer returns these errors instead of ad hoc strings so that callers
// can branch on the cause with errors.Is while still carrying a
// human-readable message to surface at the boundary. The HTTP layer maps
// each sentinel to a status code; nothing below the handlers knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check for them with errors.Is — they may be wrapped
// several layers deep by the time they reach a handler.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Identity-provider failures.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email taken")
	ErrWeakPassword        = errors.New("weak password")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNoSession           = errors.New("no session found")
)

// AppError pairs a sentinel with a message meant for end users.
type AppError struct {
	Err     error  // sentinel identifying the error class
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that a resource does not exist.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports a rejected input value.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that a concurrent writer got there first.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// InvalidCredentials reports a failed email/password login. The message is
// deliberately vague — it must not reveal whether the email exists.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

// EmailTaken reports a registration attempt with an already-registered email.
func EmailTaken(email string) *AppError {
	return &AppError{
		Err:     ErrEmailTaken,
		Message: fmt.Sprintf("an account with email %s already exists", email),
		Field:   "email",
	}
}

// WeakPassword reports a registration password that fails the policy.
func WeakPassword(message string) *AppError {
	return &AppError{
		Err:     ErrWeakPassword,
		Message: message,
		Field:   "password",
	}
}

// ProviderUnavailable reports that the session provider could not be
// reached. During bootstrap the synchronizer degrades to the cache fallback;
// during explicit user actions the failure is surfaced.
func ProviderUnavailable() *AppError {
	return &AppError{
		Err:     ErrProviderUnavailable,
		Message: "authentication service is unavailable",
	}
}

// UnsupportedProvider reports an OAuth redirect request for a provider that
// is not configured.
func UnsupportedProvider(name string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedProvider,
		Message: fmt.Sprintf("oauth provider %q is not supported", name),
		Field:   "provider",
	}
}

// NoSession reports an OAuth callback that arrived before the provider
// materialized a session.
func NoSession() *AppError {
	return &AppError{
		Err:     ErrNoSession,
		Message: "no session found",
	}
}
