package authcontext

import (
	"errors"
	"net/http"
	"strings"
)

// Default sources of the presented CSRF token.
const (
	CsrfHeader    = "X-CSRF-Token"
	CsrfFormField = "_csrf_token"
)

// TokenExtractor returns the raw bearer token presented with a request. A
// request without one yields "" and no error; an error means a credential
// was presented in a form the middleware cannot read.
type TokenExtractor func(r *http.Request) (string, error)

// ErrInvalidAuthHeader is returned for an Authorization header that is not
// "Bearer <token>".
var ErrInvalidAuthHeader = errors.New("authorization header format must be Bearer {token}")

// AuthHeaderTokenExtractor reads the token from a "Bearer" Authorization
// header. The scheme is matched case-insensitively.
func AuthHeaderTokenExtractor(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidAuthHeader
	}
	return token, nil
}

// CsrfTokenExtractor returns the CSRF token presented with a request, or an
// empty string.
type CsrfTokenExtractor func(r *http.Request) string

// DefaultCsrfTokenExtractor reads the CsrfHeader header and falls back to
// the CsrfFormField form field.
func DefaultCsrfTokenExtractor(r *http.Request) string {
	if token := r.Header.Get(CsrfHeader); token != "" {
		return token
	}
	return r.PostFormValue(CsrfFormField)
}
