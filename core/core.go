// Package core provides the framework-agnostic authentication context logic
// that sits between an inbound request or session and the identity subsystem.
//
// The Service type resolves the current principal, verifies presented
// credentials, reports the last authentication failure and validates CSRF
// tokens. Transport adapters (net/http, Gin, Echo, gRPC) wrap it.
package core

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// UserDirectory looks up domain users.
//
// FindOneByID must return ErrUserNotFound (or an error wrapping it) when no
// user exists for the id. FindOneByEmail returns (nil, nil) when no user
// matches; a missing user is not a fault.
type UserDirectory interface {
	FindOneByID(ctx context.Context, id UserID) (*User, error)
	FindOneByEmail(ctx context.Context, email string) (*User, error)
}

// CredentialVerifier checks a presented secret against a principal's stored
// credential hash. It must not have side effects.
type CredentialVerifier interface {
	IsSecretValid(ctx context.Context, principal *Principal, secret string) (bool, error)
}

// CsrfTokenValidator reports whether a CSRF challenge matches the stored
// token for its identifier. Every invalidity cause collapses to false.
type CsrfTokenValidator interface {
	IsTokenValid(ctx context.Context, challenge CsrfChallenge) (bool, error)
}

// SessionStore is a key-value view over a single client session.
// Get returns (nil, nil) for a missing key.
type SessionStore interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// RequestContext is the per-request attribute bag. The core only reads it.
type RequestContext interface {
	HasAttribute(key string) bool
	Attribute(key string) any
}

// Logger defines an optional logging interface for the service.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service is the authentication context façade.
// It holds no request state and is safe for concurrent use.
type Service struct {
	directory UserDirectory
	verifier  CredentialVerifier
	tokens    TokenHolder
	csrf      CsrfTokenValidator
	logger    Logger
	metrics   Metrics
	tracer    trace.Tracer
}
