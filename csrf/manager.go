// Package csrf issues and validates anti-forgery tokens stored in the client
// session bound to the request context.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/acme-app/authcontext/core"
)

// DefaultNamespace prefixes the session keys holding tokens.
const DefaultNamespace = "_csrf"

// tokenLength is the number of random bytes per token.
const tokenLength = 32

// ErrNoSession is returned when a token is requested without a session in
// the context.
var ErrNoSession = errors.New("csrf: no session bound to context")

// Manager issues one token per identifier and session. It implements
// core.CsrfTokenValidator.
type Manager struct {
	namespace string
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace changes the session key prefix.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// NewManager returns a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) key(id string) string {
	return m.namespace + "/" + id
}

// Token returns the token for id, generating and storing one when the
// session has none yet.
func (m *Manager) Token(ctx context.Context, id string) (string, error) {
	session := core.SessionFrom(ctx)
	if session == nil {
		return "", ErrNoSession
	}

	existing, err := session.Get(ctx, m.key(id))
	if err != nil {
		return "", fmt.Errorf("csrf: read token: %w", err)
	}
	if len(existing) > 0 {
		return string(existing), nil
	}
	return m.store(ctx, session, id)
}

// Refresh replaces the token for id with a new one.
func (m *Manager) Refresh(ctx context.Context, id string) (string, error) {
	session := core.SessionFrom(ctx)
	if session == nil {
		return "", ErrNoSession
	}
	return m.store(ctx, session, id)
}

// Remove deletes the token for id. Without a session there is nothing to
// remove.
func (m *Manager) Remove(ctx context.Context, id string) error {
	session := core.SessionFrom(ctx)
	if session == nil {
		return nil
	}
	if err := session.Remove(ctx, m.key(id)); err != nil {
		return fmt.Errorf("csrf: remove token: %w", err)
	}
	return nil
}

// IsTokenValid reports whether challenge.Value is the stored token for
// challenge.ID. A missing session, a missing token and a mismatch all yield
// false. Only session read faults are errors.
func (m *Manager) IsTokenValid(ctx context.Context, challenge core.CsrfChallenge) (bool, error) {
	session := core.SessionFrom(ctx)
	if session == nil || challenge.Value == "" {
		return false, nil
	}

	stored, err := session.Get(ctx, m.key(challenge.ID))
	if err != nil {
		return false, fmt.Errorf("csrf: read token: %w", err)
	}
	if len(stored) == 0 {
		return false, nil
	}
	return subtle.ConstantTimeCompare(stored, []byte(challenge.Value)) == 1, nil
}

func (m *Manager) store(ctx context.Context, session core.SessionStore, id string) (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	if err := session.Set(ctx, m.key(id), []byte(token)); err != nil {
		return "", fmt.Errorf("csrf: store token: %w", err)
	}
	return token, nil
}
