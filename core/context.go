package core

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	tokenKey contextKey = iota
	sessionKey
)

// Token is a security token held for the current request or session.
type Token interface {
	// User returns the value the token authenticates. Only a *Principal is
	// recognised as an authenticated user.
	User() any
}

// TokenHolder gives access to the token of the current request or session.
// Token returns nil when no token is held.
type TokenHolder interface {
	Token(ctx context.Context) Token
}

// AuthenticatedToken holds a verified principal.
type AuthenticatedToken struct {
	Principal *Principal
}

func (t AuthenticatedToken) User() any {
	if t.Principal == nil {
		return nil
	}
	return t.Principal
}

// AnonymousToken marks a request that passed through authentication without
// credentials.
type AnonymousToken struct{}

func (AnonymousToken) User() any {
	return "anon."
}

// ContextTokenHolder reads the token bound to the context by WithToken.
// It is the default TokenHolder.
type ContextTokenHolder struct{}

func (ContextTokenHolder) Token(ctx context.Context) Token {
	token, _ := ctx.Value(tokenKey).(Token)
	return token
}

// WithToken binds token to ctx for ContextTokenHolder.
func WithToken(ctx context.Context, token Token) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// WithPrincipal binds an AuthenticatedToken for p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return WithToken(ctx, AuthenticatedToken{Principal: p})
}

// WithSession binds the client session to ctx. The failure reporter and the
// CSRF token manager read the session from here.
func WithSession(ctx context.Context, s SessionStore) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session bound to ctx, or nil.
func SessionFrom(ctx context.Context) SessionStore {
	s, _ := ctx.Value(sessionKey).(SessionStore)
	return s
}
