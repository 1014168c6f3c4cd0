// Package bearer authenticates requests carrying a signed JWT whose subject
// is a user id known to the directory.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/acme-app/authcontext/core"
)

// RolesClaim carries the principal roles in issued tokens.
const RolesClaim = "roles"

var (
	// ErrInvalidToken is returned when a token fails parsing, signature
	// verification or claim validation.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrMissingSubject is returned when a valid token has no subject.
	ErrMissingSubject = errors.New("bearer token has no subject")
)

var signatureAlgorithms = map[string]jwa.SignatureAlgorithm{
	"HS256": jwa.HS256(),
	"HS384": jwa.HS384(),
	"HS512": jwa.HS512(),
	"RS256": jwa.RS256(),
	"RS384": jwa.RS384(),
	"RS512": jwa.RS512(),
	"ES256": jwa.ES256(),
	"ES384": jwa.ES384(),
	"ES512": jwa.ES512(),
	"PS256": jwa.PS256(),
	"PS384": jwa.PS384(),
	"PS512": jwa.PS512(),
	"EdDSA": jwa.EdDSA(),
}

// Authenticator verifies bearer tokens and resolves their subject to a
// principal.
type Authenticator struct {
	directory  core.UserDirectory
	alg        jwa.SignatureAlgorithm
	key        any
	keys       KeySource
	signingKey any
	issuer     string
	audience   string
	clockSkew  time.Duration
	now        func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator) error

// WithIssuer requires the iss claim to equal issuer. Issued tokens carry it.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) error {
		if issuer == "" {
			return errors.New("issuer cannot be empty")
		}
		a.issuer = issuer
		return nil
	}
}

// WithAudience requires the aud claim to contain audience. Issued tokens
// carry it.
func WithAudience(audience string) Option {
	return func(a *Authenticator) error {
		if audience == "" {
			return errors.New("audience cannot be empty")
		}
		a.audience = audience
		return nil
	}
}

// WithAllowedClockSkew tolerates clock drift when checking exp, nbf and iat.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(a *Authenticator) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		a.clockSkew = skew
		return nil
	}
}

// WithSigningKey sets the key used by Issue when it differs from the
// verification key, as with asymmetric algorithms.
func WithSigningKey(key any) Option {
	return func(a *Authenticator) error {
		if key == nil {
			return errors.New("signing key cannot be nil")
		}
		a.signingKey = key
		return nil
	}
}

// New returns an Authenticator verifying tokens signed with alg under key.
func New(directory core.UserDirectory, alg string, key any, opts ...Option) (*Authenticator, error) {
	if directory == nil {
		return nil, errors.New("user directory is required but was nil")
	}
	if key == nil {
		return nil, errors.New("verification key is required but was nil")
	}
	sigAlg, ok := signatureAlgorithms[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}

	a := &Authenticator{
		directory:  directory,
		alg:        sigAlg,
		key:        key,
		signingKey: key,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return a, nil
}

// NewWithKeySource returns an Authenticator verifying tokens against the
// keys supplied by keys. Issue signs with alg and requires WithSigningKey.
func NewWithKeySource(directory core.UserDirectory, alg string, keys KeySource, opts ...Option) (*Authenticator, error) {
	if directory == nil {
		return nil, errors.New("user directory is required but was nil")
	}
	if keys == nil {
		return nil, errors.New("key source is required but was nil")
	}
	sigAlg, ok := signatureAlgorithms[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}

	a := &Authenticator{
		directory: directory,
		alg:       sigAlg,
		keys:      keys,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return a, nil
}

// Authenticate verifies raw and returns an AuthenticatedToken for the user
// named by its subject. A subject unknown to the directory is an invalid
// token.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (core.Token, error) {
	var keyOpt jwt.ParseOption = jwt.WithKey(a.alg, a.key)
	if a.keys != nil {
		set, err := a.keys.KeySet(ctx)
		if err != nil {
			return nil, fmt.Errorf("load verification keys: %w", err)
		}
		keyOpt = jwt.WithKeySet(set)
	}

	opts := []jwt.ParseOption{
		keyOpt,
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(a.clockSkew),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	token, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, _ := token.Subject()
	if sub == "" {
		return nil, ErrMissingSubject
	}

	user, err := a.directory.FindOneByID(ctx, core.UserID(sub))
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, core.ErrUserNotFound)
	}

	return core.AuthenticatedToken{Principal: core.PrincipalFromUser(user)}, nil
}

// Issue signs a token for p valid for ttl.
func (a *Authenticator) Issue(p *core.Principal, ttl time.Duration) (string, error) {
	if p == nil {
		return "", errors.New("principal is required but was nil")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	if a.signingKey == nil {
		return "", errors.New("no signing key configured")
	}

	now := a.now()
	builder := jwt.NewBuilder().
		Subject(p.UserID.String()).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if a.issuer != "" {
		builder = builder.Issuer(a.issuer)
	}
	if a.audience != "" {
		builder = builder.Audience([]string{a.audience})
	}
	if len(p.Roles) > 0 {
		builder = builder.Claim(RolesClaim, p.Roles)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(a.alg, a.signingKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}
