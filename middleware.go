package authcontext

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/acme-app/authcontext/bearer"
	"github.com/acme-app/authcontext/core"
	"github.com/acme-app/authcontext/session"
)

// Authenticator turns a raw bearer token into a security token.
// *bearer.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (core.Token, error)
}

// Middleware binds the client session, the request attribute bag and the
// security token to every request, and guards handlers that need a
// principal or a valid CSRF token.
type Middleware struct {
	service             *core.Service
	sessions            session.Backend
	cookie              CookieConfig
	authenticator       Authenticator
	errorHandler        ErrorHandler
	tokenExtractor      TokenExtractor
	csrfExtractor       CsrfTokenExtractor
	exclusionURLHandler ExclusionURLHandler
	logger              core.Logger
	tracer              trace.Tracer
}

type sessionIDKey struct{}

// ExclusionURLHandler reports whether a request bypasses the middleware.
type ExclusionURLHandler func(r *http.Request) bool

// New constructs a Middleware with the supplied options.
//
// Example:
//
//	mw, err := authcontext.New(
//	    authcontext.WithService(svc),
//	    authcontext.WithSessionBackend(session.NewMemoryBackend(0)),
//	    authcontext.WithAuthenticator(bearerAuth),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create middleware: %v", err)
//	}
func New(opts ...Option) (*Middleware, error) {
	m := &Middleware{
		cookie: DefaultCookieConfig(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid middleware configuration: %w", err)
	}

	m.applyDefaults()
	return m, nil
}

func (m *Middleware) validate() error {
	if m.service == nil {
		return ErrServiceNil
	}
	if m.sessions == nil {
		return ErrSessionBackendNil
	}
	return nil
}

func (m *Middleware) applyDefaults() {
	if m.errorHandler == nil {
		m.errorHandler = DefaultErrorHandler
	}
	if m.tokenExtractor == nil {
		m.tokenExtractor = AuthHeaderTokenExtractor
	}
	if m.csrfExtractor == nil {
		m.csrfExtractor = DefaultCsrfTokenExtractor
	}
	if m.tracer == nil {
		m.tracer = defaultTracer()
	}
}

// Service returns the authentication context service the middleware guards
// with.
func (m *Middleware) Service() *core.Service {
	return m.service
}

// Handler loads or starts the client session, attaches an empty attribute
// bag and resolves the security token before calling next.
//
// Requests without a bearer token carry an AnonymousToken. An invalid bearer
// token is rejected through the error handler.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionURLHandler != nil && m.exclusionURLHandler(r) {
			if m.logger != nil {
				m.logger.Debug("skipping authentication context for excluded URL",
					"method", r.Method,
					"path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := m.startSpan(r)
		defer span.End()

		sid, err := m.loadSession(w, r)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("failed to load session", "error", err)
			}
			recordError(span, err)
			m.errorHandler(w, r, err)
			return
		}
		ctx = context.WithValue(ctx, sessionIDKey{}, sid)
		ctx = core.WithSession(ctx, m.sessions.Session(sid))
		ctx = withAttributes(ctx, NewAttributes())

		token, err := m.resolveToken(ctx, r)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("bearer authentication failed",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)
			}
			recordError(span, err)
			m.errorHandler(w, r, err)
			return
		}
		ctx = core.WithToken(ctx, token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrincipal rejects requests that do not resolve to a current user.
// A stale token is rejected like a missing one.
func (m *Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.service.CurrentUser(r.Context()); err != nil {
			if m.logger != nil {
				m.logger.Debug("request has no current user",
					"error", err,
					"path", r.URL.Path)
			}
			m.errorHandler(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCsrf rejects unsafe requests whose CSRF token does not match the
// one issued for id. GET, HEAD, OPTIONS and TRACE pass through.
func (m *Middleware) RequireCsrf(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			valid, err := m.service.IsCsrfTokenValid(r.Context(), id, m.csrfExtractor(r))
			if err != nil {
				m.errorHandler(w, r, fmt.Errorf("check csrf token: %w", err))
				return
			}
			if !valid {
				m.errorHandler(w, r, core.ErrCsrfTokenInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RenewSession destroys the session bound to r and binds a fresh, empty one
// to the returned request. Handlers call it once authentication succeeds, so
// an identifier known before login is worthless afterwards.
func (m *Middleware) RenewSession(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	old, ok := r.Context().Value(sessionIDKey{}).(string)
	if !ok {
		return nil, core.ErrNoSession
	}
	if err := m.sessions.Destroy(r.Context(), old); err != nil {
		return nil, fmt.Errorf("destroy session: %w", err)
	}

	sid, err := m.startSession(w, r)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(r.Context(), sessionIDKey{}, sid)
	ctx = core.WithSession(ctx, m.sessions.Session(sid))
	return r.WithContext(ctx), nil
}

// Logout destroys the client session and expires its cookie.
func (m *Middleware) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(m.cookie.Name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil
	}
	if session.ValidID(cookie.Value) {
		if err := m.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}
	http.SetCookie(w, m.cookie.expired())
	return nil
}

// loadSession returns the session named by the request cookie when the
// backend holds it. Unknown or malformed ids get a fresh session so a client
// cannot choose its own identifier.
func (m *Middleware) loadSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(m.cookie.Name); err == nil && session.ValidID(cookie.Value) {
		ok, err := m.sessions.Exists(r.Context(), cookie.Value)
		if err != nil {
			return "", fmt.Errorf("check session: %w", err)
		}
		if ok {
			return cookie.Value, nil
		}
		if m.logger != nil {
			m.logger.Debug("ignoring unknown session id", "path", r.URL.Path)
		}
	}
	return m.startSession(w, r)
}

func (m *Middleware) startSession(w http.ResponseWriter, r *http.Request) (string, error) {
	sid, err := session.NewID()
	if err != nil {
		return "", err
	}
	if m.logger != nil {
		m.logger.Debug("starting new session", "path", r.URL.Path)
	}
	http.SetCookie(w, m.cookie.cookie(sid))
	return sid, nil
}

func (m *Middleware) resolveToken(ctx context.Context, r *http.Request) (core.Token, error) {
	if m.authenticator == nil {
		return core.AnonymousToken{}, nil
	}

	raw, err := m.tokenExtractor(r)
	if err != nil {
		return nil, &invalidError{details: fmt.Errorf("error extracting token: %w", err)}
	}
	if raw == "" {
		return core.AnonymousToken{}, nil
	}

	token, err := m.authenticator.Authenticate(ctx, raw)
	if err != nil {
		if isTokenRejection(err) {
			return nil, &invalidError{details: err}
		}
		return nil, fmt.Errorf("authenticate bearer token: %w", err)
	}
	return token, nil
}

// isTokenRejection separates a token the authenticator refused from a fault
// in its dependencies, which passes through unchanged.
func isTokenRejection(err error) bool {
	return errors.Is(err, bearer.ErrInvalidToken) || errors.Is(err, bearer.ErrMissingSubject)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
