// AngelaMos | 2026
// cookies.go

package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "auth-token"
	RefreshCookieName = "refresh-token"
)

// CookieWriter centralizes the transport flags for both auth cookies.
// Clearing must reproduce the exact flag set used at creation or browsers
// silently keep the cookie.
type CookieWriter struct {
	domain string
	secure bool
}

func NewCookieWriter(domain string, secure bool) *CookieWriter {
	return &CookieWriter{domain: domain, secure: secure}
}

func (c *CookieWriter) SetAccess(
	w http.ResponseWriter,
	token string,
	maxAge time.Duration,
) {
	http.SetCookie(w, c.build(AccessCookieName, token, int(maxAge.Seconds())))
}

func (c *CookieWriter) SetRefresh(
	w http.ResponseWriter,
	token string,
	maxAge time.Duration,
) {
	http.SetCookie(w, c.build(RefreshCookieName, token, int(maxAge.Seconds())))
}

func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.build(AccessCookieName, "", -1))
	http.SetCookie(w, c.build(RefreshCookieName, "", -1))
}

func (c *CookieWriter) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
