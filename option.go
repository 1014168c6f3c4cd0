package authcontext

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/acme-app/authcontext/core"
	"github.com/acme-app/authcontext/session"
)

// Option configures the Middleware.
// Returns error for validation failures.
type Option func(*Middleware) error

// WithService sets the authentication context service (REQUIRED).
func WithService(s *core.Service) Option {
	return func(m *Middleware) error {
		if s == nil {
			return ErrServiceNil
		}
		m.service = s
		return nil
	}
}

// WithSessionBackend sets the session storage (REQUIRED).
func WithSessionBackend(b session.Backend) Option {
	return func(m *Middleware) error {
		if b == nil {
			return ErrSessionBackendNil
		}
		m.sessions = b
		return nil
	}
}

// WithCookie sets the session cookie attributes.
//
// Default: DefaultCookieConfig()
func WithCookie(c CookieConfig) Option {
	return func(m *Middleware) error {
		if c.Name == "" {
			return ErrCookieNameEmpty
		}
		m.cookie = c
		return nil
	}
}

// WithAuthenticator enables bearer authentication. Without it every request
// carries an AnonymousToken unless an outer layer binds a token.
func WithAuthenticator(a Authenticator) Option {
	return func(m *Middleware) error {
		if a == nil {
			return ErrAuthenticatorNil
		}
		m.authenticator = a
		return nil
	}
}

// WithErrorHandler sets the handler called when the middleware rejects a
// request. See the ErrorHandler type for more information.
//
// Default: DefaultErrorHandler
func WithErrorHandler(h ErrorHandler) Option {
	return func(m *Middleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithTokenExtractor sets the function to extract the bearer token from the
// request.
//
// Default: AuthHeaderTokenExtractor
func WithTokenExtractor(e TokenExtractor) Option {
	return func(m *Middleware) error {
		if e == nil {
			return ErrTokenExtractorNil
		}
		m.tokenExtractor = e
		return nil
	}
}

// WithCsrfTokenExtractor sets the function reading the presented CSRF token.
//
// Default: DefaultCsrfTokenExtractor
func WithCsrfTokenExtractor(e CsrfTokenExtractor) Option {
	return func(m *Middleware) error {
		if e == nil {
			return ErrCsrfExtractorNil
		}
		m.csrfExtractor = e
		return nil
	}
}

// WithExclusionUrls configures URL patterns that bypass the middleware.
// URLs can be full URLs or just paths.
func WithExclusionUrls(exclusions []string) Option {
	return func(m *Middleware) error {
		if len(exclusions) == 0 {
			return ErrExclusionUrlsEmpty
		}
		m.exclusionURLHandler = func(r *http.Request) bool {
			requestFullURL := r.URL.String()
			requestPath := r.URL.Path

			for _, exclusion := range exclusions {
				if requestFullURL == exclusion || requestPath == exclusion {
					return true
				}
			}
			return false
		}
		return nil
	}
}

// WithLogger sets an optional logger for the middleware.
//
// The logger interface is compatible with log/slog.Logger. Use
// NewLogrusLogger, NewZapLogger or NewZerologLogger for other loggers.
func WithLogger(logger core.Logger) Option {
	return func(m *Middleware) error {
		if logger == nil {
			return ErrLoggerNil
		}
		m.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for the per-request span.
//
// Default: the global OpenTelemetry tracer provider
func WithTracer(t trace.Tracer) Option {
	return func(m *Middleware) error {
		if t == nil {
			return ErrTracerNil
		}
		m.tracer = t
		return nil
	}
}

// Sentinel errors for configuration validation
var (
	ErrServiceNil         = errors.New("service cannot be nil (use WithService)")
	ErrSessionBackendNil  = errors.New("session backend cannot be nil (use WithSessionBackend)")
	ErrCookieNameEmpty    = errors.New("session cookie name cannot be empty")
	ErrAuthenticatorNil   = errors.New("authenticator cannot be nil")
	ErrErrorHandlerNil    = errors.New("errorHandler cannot be nil")
	ErrTokenExtractorNil  = errors.New("tokenExtractor cannot be nil")
	ErrCsrfExtractorNil   = errors.New("csrf token extractor cannot be nil")
	ErrExclusionUrlsEmpty = errors.New("exclusion URLs list cannot be empty")
	ErrLoggerNil          = errors.New("logger cannot be nil")
	ErrTracerNil          = errors.New("tracer cannot be nil")
)
