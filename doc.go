/*
Package authcontext provides net/http middleware that binds the
authentication context of a request: the client session, the request
attribute bag and the security token. Handlers then ask a core.Service
who the current user is, verify login credentials, read the last
authentication failure and validate CSRF tokens.

The middleware follows the Core-Adapter pattern, with this package serving
as the HTTP transport adapter. framework/gin, framework/echo and
framework/grpc adapt the same core to other transports.

# Quick Start

	users := directory.NewMemoryDirectory(seedUsers...)
	csrfTokens := csrf.NewManager()

	svc, err := core.New(
	    core.WithUserDirectory(users),
	    core.WithCredentialVerifier(credential.NewBcryptVerifier()),
	    core.WithCsrfTokenValidator(csrfTokens),
	)
	if err != nil {
	    log.Fatal(err)
	}

	mw, err := authcontext.New(
	    authcontext.WithService(svc),
	    authcontext.WithSessionBackend(session.NewMemoryBackend(0)),
	)
	if err != nil {
	    log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/me", mw.RequirePrincipal(meHandler))
	http.ListenAndServe(":8080", mw.Handler(mux))

# Sessions

Handler reads the session id from the session cookie (DefaultCookieName)
and starts a new session when the cookie is missing or malformed. The
session is bound with core.WithSession, so csrf.Manager and the failure
reporter find it through the context. Use session.NewRedisBackend to share
sessions between instances.

# Bearer Tokens

With WithAuthenticator, a bearer token in the Authorization header is
verified and its subject resolved to a principal. Requests without a token
carry a core.AnonymousToken, which never counts as an authenticated user.

# Login Failures

A login handler that renders the form in the same request records the
failure with SetFailure. One that redirects saves it to the session with
core.Service.SaveFailure. The next core.Service.LastFailure call reads the
attribute first and otherwise consumes the session entry.

# Error Handling

DefaultErrorHandler writes a JSON body:

  - ErrTokenInvalid: 401 with error "invalid_token"
  - core.ErrNoPrincipalAuthenticated: 401 with error "unauthenticated"
  - core.ErrCsrfTokenInvalid: 403 with error "invalid_csrf_token"
  - anything else: 500 with error "server_error"

# Logging

WithLogger accepts any core.Logger, including *slog.Logger. NewLogrusLogger,
NewZapLogger and NewZerologLogger adapt the other common loggers.
*/
package authcontext
