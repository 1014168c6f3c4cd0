package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authentication context.
var (
	// ErrNoPrincipalAuthenticated is returned when a caller requires an
	// authenticated principal but the token holder has none.
	ErrNoPrincipalAuthenticated = errors.New("no principal authenticated")

	// ErrUserNotFound is returned by a UserDirectory when no user has the
	// requested id.
	ErrUserNotFound = errors.New("user not found")

	// ErrCorruptSession is returned when a session slot holds bytes that
	// cannot be decoded.
	ErrCorruptSession = errors.New("corrupt session data")

	// ErrUnsupportedFailure is returned when the request attribute slot
	// holds a value that is not an authentication failure.
	ErrUnsupportedFailure = errors.New("unsupported authentication failure value")

	// ErrCsrfTokenInvalid is a convenience error for transports that reject
	// requests carrying an invalid CSRF token. The service never returns it.
	ErrCsrfTokenInvalid = errors.New("invalid csrf token")
)

// StalePrincipalError is returned by CurrentUser when the token holder
// references a user that the directory no longer knows. It matches both
// ErrNoPrincipalAuthenticated and ErrUserNotFound.
type StalePrincipalError struct {
	UserID UserID
	Err    error
}

func (e *StalePrincipalError) Error() string {
	return fmt.Sprintf("principal %s no longer resolves to a user: %v", e.UserID, e.Err)
}

func (e *StalePrincipalError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrNoPrincipalAuthenticated so callers can send
// the client back to login.
func (e *StalePrincipalError) Is(target error) bool {
	return target == ErrNoPrincipalAuthenticated
}

// ConfigError is returned by New when the service is misconfigured.
type ConfigError struct {
	// Code is a machine-readable error code (e.g., "directory_not_set")
	Code string

	// Message is a human-readable error message
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Configuration error codes
const (
	ErrorCodeDirectoryNotSet = "directory_not_set"
	ErrorCodeVerifierNotSet  = "verifier_not_set"
	ErrorCodeCsrfNotSet      = "csrf_validator_not_set"
)
