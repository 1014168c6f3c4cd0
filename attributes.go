package authcontext

import (
	"context"
	"sync"

	"github.com/acme-app/authcontext/core"
)

type attributesKey struct{}

// Attributes is the per-request attribute bag. It implements
// core.RequestContext and is safe for concurrent use.
type Attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewAttributes returns an empty bag.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

func (a *Attributes) HasAttribute(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.values[key]
	return ok
}

func (a *Attributes) Attribute(key string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values[key]
}

// Set stores value under key.
func (a *Attributes) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.values, key)
}

func withAttributes(ctx context.Context, a *Attributes) context.Context {
	return context.WithValue(ctx, attributesKey{}, a)
}

// AttributesFrom returns the bag attached by Middleware.Handler. Outside the
// middleware it returns a fresh empty bag, so reads always succeed.
func AttributesFrom(ctx context.Context) *Attributes {
	if a, ok := ctx.Value(attributesKey{}).(*Attributes); ok {
		return a
	}
	return NewAttributes()
}

// SetFailure records failure in the request attribute slot, where the
// failure reporter reads it before the session.
func SetFailure(ctx context.Context, failure error) {
	AttributesFrom(ctx).Set(core.AuthenticationErrorKey, failure)
}

// SetLastUsername records the last submitted username in the request
// attribute slot.
func SetLastUsername(ctx context.Context, username string) {
	AttributesFrom(ctx).Set(core.LastUsernameKey, username)
}
