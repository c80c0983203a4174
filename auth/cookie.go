package auth

import (
	"net/http"
	"time"
)

// CookieName holds the owner token.
const CookieName = "canvas_token"

// TokenTTL is the lifetime of issued tokens and their cookie.
const TokenTTL = 7 * 24 * time.Hour

// SetTokenCookie writes the JWT token as an HttpOnly cookie.
// Lax keeps the cookie on top-level navigation from a shared /s/{id} link.
func SetTokenCookie(w http.ResponseWriter, token, domain string, secure bool) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}

// ClearTokenCookie removes the JWT cookie, matching the same Domain attribute.
func ClearTokenCookie(w http.ResponseWriter, domain string) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}
