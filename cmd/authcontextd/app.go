package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/bearer"
	"github.com/acme-app/authcontext/core"
	"github.com/acme-app/authcontext/csrf"
	"github.com/acme-app/authcontext/session"
)

// CSRF token ids.
const (
	authenticateIntent = "authenticate"
	logoutIntent       = "logout"
)

const passwordGrant = "password"

// invalidCredentials is recorded for unknown users and wrong passwords alike.
var invalidCredentials = &core.AuthenticationFailure{
	Message:    "invalid credentials",
	Code:       http.StatusUnauthorized,
	MessageKey: "Invalid credentials.",
}

type app struct {
	svc       *core.Service
	mw        *authcontext.Middleware
	tokens    *csrf.Manager
	issuer    *bearer.Authenticator
	bearerTTL time.Duration
	logger    core.Logger
}

func newApp(
	svc *core.Service,
	sessions session.Backend,
	tokens *csrf.Manager,
	issuer *bearer.Authenticator,
	bearerTTL time.Duration,
	cookie authcontext.CookieConfig,
	logger core.Logger,
) (*app, error) {
	opts := []authcontext.Option{
		authcontext.WithService(svc),
		authcontext.WithSessionBackend(sessions),
		authcontext.WithCookie(cookie),
		authcontext.WithLogger(logger),
		authcontext.WithExclusionUrls([]string{"/metrics"}),
	}
	if issuer != nil {
		opts = append(opts, authcontext.WithAuthenticator(issuer))
	}

	mw, err := authcontext.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("configure middleware: %w", err)
	}

	return &app{
		svc:       svc,
		mw:        mw,
		tokens:    tokens,
		issuer:    issuer,
		bearerTTL: bearerTTL,
		logger:    logger,
	}, nil
}

func (a *app) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /login", a.loginForm)
	mux.Handle("POST /login", a.mw.RequireCsrf(authenticateIntent)(http.HandlerFunc(a.login)))
	mux.Handle("GET /me", a.mw.RequirePrincipal(http.HandlerFunc(a.me)))
	mux.Handle("POST /logout", a.mw.RequireCsrf(logoutIntent)(http.HandlerFunc(a.logout)))
	return a.mw.Handler(mux)
}

type failureView struct {
	MessageKey  string         `json:"message_key"`
	MessageData map[string]any `json:"message_data,omitempty"`
}

type loginFormView struct {
	CsrfToken    string       `json:"csrf_token"`
	LogoutToken  string       `json:"logout_token"`
	LastUsername string       `json:"last_username,omitempty"`
	Error        *failureView `json:"error,omitempty"`
}

// loginForm reports the state a login page renders. The last failure is
// consumed; the last attempted username is not.
func (a *app) loginForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attrs := authcontext.AttributesFrom(ctx)

	token, err := a.tokens.Token(ctx, authenticateIntent)
	if err != nil {
		a.fail(w, r, fmt.Errorf("issue csrf token: %w", err))
		return
	}
	logoutToken, err := a.tokens.Token(ctx, logoutIntent)
	if err != nil {
		a.fail(w, r, fmt.Errorf("issue csrf token: %w", err))
		return
	}
	username, err := a.svc.LastFailureUsername(ctx, attrs)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	view := loginFormView{CsrfToken: token, LogoutToken: logoutToken, LastUsername: username}

	failure, err := a.svc.LastFailure(ctx, attrs, true)
	switch {
	case errors.Is(err, core.ErrCorruptSession):
		// The record is gone; render the form as if nothing happened.
		a.logger.Warn("dropping corrupt failure record", "error", err)
	case err != nil:
		a.fail(w, r, err)
		return
	case failure != nil:
		view.Error = &failureView{MessageKey: failure.MessageKey, MessageData: failure.MessageData}
	}

	writeJSON(w, http.StatusOK, view)
}

type grantView struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.PostFormValue("email")

	principal, err := a.svc.VerifyCredentials(ctx, email, r.PostFormValue("password"), passwordGrant)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if principal == nil {
		if err := a.svc.SaveFailure(ctx, invalidCredentials, email); err != nil {
			a.fail(w, r, err)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	renewed, err := a.mw.RenewSession(w, r)
	if err != nil {
		a.fail(w, r, fmt.Errorf("rotate session: %w", err))
		return
	}
	r = renewed
	if _, err := a.tokens.Refresh(r.Context(), authenticateIntent); err != nil {
		a.fail(w, r, fmt.Errorf("rotate csrf token: %w", err))
		return
	}

	view := grantView{UserID: principal.Identifier()}
	if a.issuer != nil {
		raw, err := a.issuer.Issue(principal, a.bearerTTL)
		if err != nil {
			a.fail(w, r, fmt.Errorf("issue bearer token: %w", err))
			return
		}
		view.AccessToken = raw
		view.TokenType = "Bearer"
		view.ExpiresIn = int(a.bearerTTL.Seconds())
	}

	a.logger.Info("user logged in", "user_id", principal.UserID)
	writeJSON(w, http.StatusOK, view)
}

type userView struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (a *app) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.CurrentUser(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView{
		ID:       user.ID.String(),
		Email:    user.Email,
		Username: user.Username,
		Roles:    user.Roles,
	})
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.mw.Logout(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed", "error", err, "path", r.URL.Path)
	authcontext.DefaultErrorHandler(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
