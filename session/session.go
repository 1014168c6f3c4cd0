// Package session provides client session storage for the authentication
// context. A Backend holds many sessions; Backend.Session returns a
// core.SessionStore scoped to one of them.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/acme-app/authcontext/core"
)

const (
	// DefaultTTL is the idle lifetime of a session.
	DefaultTTL = 30 * time.Minute

	// IDLength is the number of random bytes in a session id.
	IDLength = 32
)

// ErrInvalidID is returned for ids that NewID could not have produced.
var ErrInvalidID = errors.New("invalid session id")

// Backend stores sessions keyed by id.
type Backend interface {
	// Session returns the store for id. It does not create anything until a
	// value is written.
	Session(id string) core.SessionStore

	// Exists reports whether a session with id holds any value.
	Exists(ctx context.Context, id string) (bool, error)

	// Destroy removes every value of the session.
	Destroy(ctx context.Context, id string) error
}

// NewID returns a random hex session id.
func NewID() (string, error) {
	b := make([]byte, IDLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	if len(id) != IDLength*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
