package authgrpc

import (
	"errors"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/core"
)

// Option configures the Interceptor.
type Option func(*Interceptor) error

// WithService sets the authentication context service (REQUIRED).
func WithService(s *core.Service) Option {
	return func(i *Interceptor) error {
		if s == nil {
			return errors.New("service cannot be nil")
		}
		i.service = s
		return nil
	}
}

// WithAuthenticator sets the bearer token authenticator (REQUIRED).
func WithAuthenticator(a authcontext.Authenticator) Option {
	return func(i *Interceptor) error {
		if a == nil {
			return errors.New("authenticator cannot be nil")
		}
		i.authenticator = a
		return nil
	}
}

// WithPrincipalRequired sets whether calls must resolve to a current user.
// When false, calls without a token proceed with an AnonymousToken.
//
// Default: true
func WithPrincipalRequired(required bool) Option {
	return func(i *Interceptor) error {
		i.requirePrincipal = required
		return nil
	}
}

// WithLogger sets an optional logger for the interceptor.
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		i.logger = logger
		return nil
	}
}

// WithTokenExtractor sets a custom token extractor function.
// Default is MetadataTokenExtractor which extracts from "authorization" metadata.
func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(i *Interceptor) error {
		if extractor == nil {
			return errors.New("token extractor cannot be nil")
		}
		i.tokenExtractor = extractor
		return nil
	}
}

// WithErrorHandler sets a custom error handler function.
// Default is DefaultErrorHandler which maps errors to gRPC status codes.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(i *Interceptor) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		i.errorHandler = handler
		return nil
	}
}

// WithExcludedMethods excludes specific gRPC methods from authentication.
// Methods should be provided in the format: "/package.Service/Method"
// Example: "/myapp.MyService/PublicMethod", "/grpc.health.v1.Health/Check"
func WithExcludedMethods(methods ...string) Option {
	return func(i *Interceptor) error {
		for _, method := range methods {
			i.excludedMethods[method] = true
		}
		return nil
	}
}
