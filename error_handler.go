package authcontext

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/acme-app/authcontext/core"
)

// ErrTokenInvalid is returned when a presented bearer token is rejected.
var ErrTokenInvalid = errors.New("bearer token invalid")

// ErrorHandler is called when the Middleware rejects a request. The err can
// be checked against ErrTokenInvalid, core.ErrNoPrincipalAuthenticated and
// core.ErrCsrfTokenInvalid. The default handler returns 401 for the first
// two, 403 for the third and 500 for everything else.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body written by DefaultErrorHandler.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// DefaultErrorHandler is the default error handler implementation for the
// Middleware. If an error handler is not provided via the WithErrorHandler
// option this will be used.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, resp, wwwAuthenticate := mapErrorToResponse(err)

	w.Header().Set("Content-Type", "application/json")
	if wwwAuthenticate != "" {
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// ResponseFor maps err to the status code and body DefaultErrorHandler
// writes. Framework adapters use it to answer in their own idiom.
func ResponseFor(err error) (int, ErrorResponse) {
	statusCode, resp, _ := mapErrorToResponse(err)
	return statusCode, resp
}

func mapErrorToResponse(err error) (int, ErrorResponse, string) {
	switch {
	case errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "The bearer token is invalid",
		}, `Bearer error="invalid_token"`
	case errors.Is(err, core.ErrNoPrincipalAuthenticated):
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "unauthenticated",
			ErrorDescription: "Authentication is required",
		}, "Bearer"
	case errors.Is(err, core.ErrCsrfTokenInvalid):
		return http.StatusForbidden, ErrorResponse{
			Error:            "invalid_csrf_token",
			ErrorDescription: "The CSRF token is invalid",
		}, ""
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "An internal error occurred while processing the request",
		}, ""
	}
}

// invalidError wraps a bearer authentication error with ErrTokenInvalid.
type invalidError struct {
	details error
}

// Is allows the error to support equality to ErrTokenInvalid.
func (e *invalidError) Is(target error) bool {
	return target == ErrTokenInvalid
}

func (e *invalidError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTokenInvalid, e.details)
}

// Unwrap allows the error to support equality to the underlying error and
// not just ErrTokenInvalid.
func (e *invalidError) Unwrap() error {
	return e.details
}
