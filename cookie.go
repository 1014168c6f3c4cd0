package authcontext

import (
	"net/http"
	"time"
)

// DefaultCookieName names the session cookie.
const DefaultCookieName = "AUTHSESSID"

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns a host-only, HttpOnly, SameSite=Lax cookie on
// path "/".
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     DefaultCookieName,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}
}

func (c CookieConfig) expired() *http.Cookie {
	ck := c.cookie("")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	return ck
}
