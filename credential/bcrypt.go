// Package credential provides password hashing and verification for the
// authentication context.
package credential

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/acme-app/authcontext/core"
)

// DefaultCost is the bcrypt cost used by Hash when none is configured.
const DefaultCost = 12

// ErrEmptySecret is returned by Hash for an empty secret.
var ErrEmptySecret = errors.New("secret cannot be empty")

// BcryptVerifier checks secrets against bcrypt hashes.
type BcryptVerifier struct{}

// NewBcryptVerifier returns a core.CredentialVerifier backed by bcrypt.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// IsSecretValid reports whether secret matches the principal's hash.
// A principal without a hash never matches. A malformed hash is an error.
func (v *BcryptVerifier) IsSecretValid(_ context.Context, p *core.Principal, secret string) (bool, error) {
	if p == nil || p.PasswordHash == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify secret for %s: %w", p.UserID, err)
	}
}

// Hash returns the bcrypt hash of secret. A cost of zero selects DefaultCost.
func Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if cost == 0 {
		cost = DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}
