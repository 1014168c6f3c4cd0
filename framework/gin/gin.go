// Package authgin adapts the authentication context middleware to Gin.
package authgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/core"
)

// DefaultUserKey is the gin.Context key holding the current *core.User after
// RequirePrincipal.
const DefaultUserKey = "authcontext.user"

var (
	ErrMissingUser = errors.New("no current user found in context")
	ErrInvalidUser = errors.New("invalid current user type")
)

type config struct {
	errorHandler func(*gin.Context, error)
	userKey      string
	csrfField    string
}

// Option configures the Gin handlers.
type Option func(*config)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// WithUserKey sets the gin.Context key for the current user.
func WithUserKey(key string) Option {
	return func(c *config) {
		c.userKey = key
	}
}

// WithCsrfFormField sets the form field RequireCsrf reads when the
// authcontext.CsrfHeader header is absent.
func WithCsrfFormField(field string) Option {
	return func(c *config) {
		c.csrfField = field
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		userKey:      DefaultUserKey,
		csrfField:    authcontext.CsrfFormField,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// New returns a Gin handler running m.Handler around the rest of the chain.
// The session, attribute bag and token are bound to c.Request's context.
func New(m *authcontext.Middleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		var next http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		}

		m.Handler(next).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}

// RequirePrincipal aborts requests without a current user and stores the
// user under the configured key otherwise.
func RequirePrincipal(svc *core.Service, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(c *gin.Context) {
		user, err := svc.CurrentUser(c.Request.Context())
		if err != nil {
			cfg.errorHandler(c, err)
			c.Abort()
			return
		}
		c.Set(cfg.userKey, user)
		c.Next()
	}
}

// RequireCsrf aborts unsafe requests whose CSRF token does not match the one
// issued for id.
func RequireCsrf(svc *core.Service, id string, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			c.Next()
			return
		}

		token := c.GetHeader(authcontext.CsrfHeader)
		if token == "" {
			token = c.PostForm(cfg.csrfField)
		}

		valid, err := svc.IsCsrfTokenValid(c.Request.Context(), id, token)
		if err == nil && !valid {
			err = core.ErrCsrfTokenInvalid
		}
		if err != nil {
			cfg.errorHandler(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by RequirePrincipal.
func CurrentUser(c *gin.Context, userKey string) (*core.User, error) {
	if userKey == "" {
		userKey = DefaultUserKey
	}
	v, exists := c.Get(userKey)
	if !exists {
		return nil, ErrMissingUser
	}
	user, ok := v.(*core.User)
	if !ok {
		return nil, ErrInvalidUser
	}
	return user, nil
}

// RequestContext exposes the gin.Context keys as the request attribute bag,
// falling back to the bag bound by the middleware.
type RequestContext struct {
	c *gin.Context
}

// Attributes returns the attribute bag view of c.
func Attributes(c *gin.Context) RequestContext {
	return RequestContext{c: c}
}

func (r RequestContext) HasAttribute(key string) bool {
	if _, ok := r.c.Get(key); ok {
		return true
	}
	return authcontext.AttributesFrom(r.c.Request.Context()).HasAttribute(key)
}

func (r RequestContext) Attribute(key string) any {
	if v, ok := r.c.Get(key); ok {
		return v
	}
	return authcontext.AttributesFrom(r.c.Request.Context()).Attribute(key)
}

// SetFailure records failure for the current request.
func SetFailure(c *gin.Context, failure error) {
	c.Set(core.AuthenticationErrorKey, failure)
}

func defaultErrorHandler(c *gin.Context, err error) {
	status, body := authcontext.ResponseFor(err)
	c.AbortWithStatusJSON(status, body)
}
