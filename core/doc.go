/*
Package core provides the framework-agnostic authentication context: the seam
between a request or session and the identity subsystem.

The Service type answers four questions for the rest of an application:

  - Who is authenticated? (CurrentPrincipalID, CurrentUser)
  - Are these credentials valid? (VerifyCredentials)
  - What was the last authentication failure? (LastFailure, LastFailureUsername)
  - Is this CSRF token valid? (IsCsrfTokenValid)

# Architecture

	┌─────────────────────────────────────────────┐
	│         Transport Adapters                  │
	│  (net/http, Gin, Echo, gRPC)                │
	└────────────────┬────────────────────────────┘
	                 │  binds token + session into context
	                 ▼
	┌─────────────────────────────────────────────┐
	│          Service (THIS PACKAGE)             │
	│  • Principal resolution                     │
	│  • Credential verification                  │
	│  • Failure reporting (request, session)     │
	│  • CSRF validation                          │
	└────────────────┬────────────────────────────┘
	                 │
	                 ▼
	┌─────────────────────────────────────────────┐
	│  Collaborators                              │
	│  UserDirectory, CredentialVerifier,         │
	│  SessionStore, CsrfTokenValidator           │
	└─────────────────────────────────────────────┘

The package never imports a collaborator implementation. See the directory,
credential, session and csrf packages for the ones shipped with this module.

# Basic Usage

	svc, err := core.New(
	    core.WithUserDirectory(users),
	    core.WithCredentialVerifier(credential.NewBcryptVerifier()),
	    core.WithCsrfTokenValidator(csrf.NewManager()),
	)
	if err != nil {
	    log.Fatal(err)
	}

	principal, err := svc.VerifyCredentials(ctx, email, password, "password")
	if err != nil {
	    // directory or verifier unavailable
	}
	if principal == nil {
	    // unknown user or wrong password
	}

# Request State

The current token and the client session travel in the context. Adapters bind
them once per request:

	ctx = core.WithSession(ctx, session)
	ctx = core.WithPrincipal(ctx, principal)

	id, err := svc.CurrentPrincipalID(ctx)
	if errors.Is(err, core.ErrNoPrincipalAuthenticated) {
	    // redirect to login
	}

A different source for the token can be plugged in with WithTokenHolder.

# Failure Reporting

Failures are looked up in the request attribute slot first and in the
session second. Reading the session slot with clearSession set removes it, so
a failure carried over a redirect is rendered exactly once:

	failure, err := svc.LastFailure(ctx, req, true)
	username, err := svc.LastFailureUsername(ctx, req)

Use PeekLastFailure to inspect the session slot without consuming it.

# Error Handling

Unknown users, wrong secrets, missing failures and invalid CSRF tokens are
normal outcomes and are reported as nil, "" or false. ErrNoPrincipalAuthenticated
signals a missing principal. Everything else comes from a collaborator and is
returned without retry.
*/
package core
