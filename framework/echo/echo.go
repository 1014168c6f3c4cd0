// Package authecho adapts the authentication context middleware to Echo.
package authecho

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/core"
)

// DefaultUserKey is the echo.Context key holding the current *core.User
// after RequirePrincipal.
var DefaultUserKey = "authcontext.user"

// config holds all configuration for the Echo handlers
type config struct {
	errorHandler func(echo.Context, error) error
	userKey      string
}

// Option is a function that configures the Echo handlers
type Option func(*config)

// WithErrorHandler sets a custom error handler
func WithErrorHandler(handler func(echo.Context, error) error) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// WithUserKey sets a custom context key to store the current user
func WithUserKey(key string) Option {
	return func(c *config) {
		c.userKey = key
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		userKey:      DefaultUserKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// New returns an Echo middleware running m.Handler around next.
func New(m *authcontext.Middleware) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var nextErr error
			var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			}

			m.Handler(handler).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

// RequirePrincipal rejects requests without a current user and stores the
// user under the configured key otherwise.
func RequirePrincipal(svc *core.Service, opts ...Option) echo.MiddlewareFunc {
	cfg := newConfig(opts)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := svc.CurrentUser(c.Request().Context())
			if err != nil {
				return cfg.errorHandler(c, err)
			}
			c.Set(cfg.userKey, user)
			return next(c)
		}
	}
}

// RequireCsrf rejects unsafe requests whose CSRF token does not match the
// one issued for id.
func RequireCsrf(svc *core.Service, id string, opts ...Option) echo.MiddlewareFunc {
	cfg := newConfig(opts)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				return next(c)
			}

			token := c.Request().Header.Get(authcontext.CsrfHeader)
			if token == "" {
				token = c.FormValue(authcontext.CsrfFormField)
			}

			valid, err := svc.IsCsrfTokenValid(c.Request().Context(), id, token)
			if err == nil && !valid {
				err = core.ErrCsrfTokenInvalid
			}
			if err != nil {
				return cfg.errorHandler(c, err)
			}
			return next(c)
		}
	}
}

// CurrentUser extracts the user stored by RequirePrincipal.
func CurrentUser(c echo.Context, userKey string) (*core.User, bool) {
	if userKey == "" {
		userKey = DefaultUserKey
	}
	user, ok := c.Get(userKey).(*core.User)
	return user, ok
}

// RequestContext exposes echo.Context values as the request attribute bag,
// falling back to the bag bound by the middleware.
type RequestContext struct {
	c echo.Context
}

// Attributes returns the attribute bag view of c.
func Attributes(c echo.Context) RequestContext {
	return RequestContext{c: c}
}

func (r RequestContext) HasAttribute(key string) bool {
	if r.c.Get(key) != nil {
		return true
	}
	return authcontext.AttributesFrom(r.c.Request().Context()).HasAttribute(key)
}

func (r RequestContext) Attribute(key string) any {
	if v := r.c.Get(key); v != nil {
		return v
	}
	return authcontext.AttributesFrom(r.c.Request().Context()).Attribute(key)
}

// SetFailure records failure for the current request.
func SetFailure(c echo.Context, failure error) {
	c.Set(core.AuthenticationErrorKey, failure)
}

func defaultErrorHandler(c echo.Context, err error) error {
	status, body := authcontext.ResponseFor(err)
	return c.JSON(status, body)
}
