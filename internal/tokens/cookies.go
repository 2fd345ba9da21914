package tokens

import (
	"net/http"
	"strings"
	"time"

	"socialhub/internal/shared/config"
)

const (
	AccessCookieName  = "access-token"
	RefreshCookieName = "refresh-token"

	// BearerPrefix is prepended to the access token cookie value
	BearerPrefix = "Bearer "
)

// StripBearer removes an optional "Bearer " scheme prefix
func StripBearer(value string) string {
	return strings.TrimSpace(strings.TrimPrefix(value, BearerPrefix))
}

// Cookies builds the Set-Cookie headers for the session pair
type Cookies struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	secure     bool
	domain     string
	path       string
}

func NewCookies(cfg config.CookieConfig, accessTTL, refreshTTL time.Duration) *Cookies {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return &Cookies{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		secure:     cfg.Secure,
		domain:     cfg.Domain,
		path:       path,
	}
}

func (c *Cookies) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path,
		Domain:   c.domain,
		MaxAge:   maxAge,
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// AccessCookie returns the access-token cookie carrying "Bearer <token>"
func (c *Cookies) AccessCookie(token string) *http.Cookie {
	return c.build(AccessCookieName, BearerPrefix+token, int(c.accessTTL.Seconds()))
}

// RefreshCookie returns the refresh-token cookie carrying the raw token
func (c *Cookies) RefreshCookie(token string) *http.Cookie {
	return c.build(RefreshCookieName, token, int(c.refreshTTL.Seconds()))
}

func (c *Cookies) SetAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.AccessCookie(token))
}

// SetPair writes both session cookies
func (c *Cookies) SetPair(w http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(w, c.AccessCookie(pair.AccessToken))
	http.SetCookie(w, c.RefreshCookie(pair.RefreshToken))
}

// Clear expires both session cookies on the client
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.build(AccessCookieName, "", -1))
	http.SetCookie(w, c.build(RefreshCookieName, "", -1))
}
