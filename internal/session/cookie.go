// Package session carries session tokens to and from the client and tracks
// tokens that were revoked before their expiry.
package session

import (
	"net/http"
	"time"

	"github.com/gatekeep/gatekeep-go/internal/crypto"
)

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "session"

// CookieConfig configures a CookieManager. Secure is resolved from the
// environment once at startup.
type CookieConfig struct {
	Name     string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// CookieManager writes and clears the session cookie.
type CookieManager struct {
	name     string
	path     string
	secure   bool
	sameSite http.SameSite
	now      func() time.Time
}

// NewCookieManager creates a CookieManager from cfg.
func NewCookieManager(cfg CookieConfig) *CookieManager {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &CookieManager{
		name:     cfg.Name,
		path:     cfg.Path,
		secure:   cfg.Secure,
		sameSite: cfg.SameSite,
		now:      time.Now,
	}
}

// Name returns the cookie name.
func (m *CookieManager) Name() string {
	return m.name
}

// Secure reports whether cookies are marked Secure.
func (m *CookieManager) Secure() bool {
	return m.secure
}

// Attach sets the session cookie to token, expiring together with it.
// A later Attach or Clear on the same response replaces the header.
func (m *CookieManager) Attach(w http.ResponseWriter, token crypto.Token) {
	maxAge := int(token.ExpiresAt.Sub(m.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	m.set(w, &http.Cookie{
		Name:     m.name,
		Value:    token.Value,
		Path:     m.path,
		Expires:  token.ExpiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}

// Clear expires the session cookie immediately. Calling it repeatedly is safe.
func (m *CookieManager) Clear(w http.ResponseWriter) {
	m.set(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     m.path,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}

// Read returns the session token presented by the client, if any.
func (m *CookieManager) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// set replaces any Set-Cookie header for the session cookie already queued on
// w, so the response carries exactly one.
func (m *CookieManager) set(w http.ResponseWriter, c *http.Cookie) {
	header := w.Header()
	existing := header.Values("Set-Cookie")
	if len(existing) > 0 {
		kept := existing[:0:0]
		for _, line := range existing {
			parsed, err := http.ParseSetCookie(line)
			if err == nil && parsed.Name == m.name {
				continue
			}
			kept = append(kept, line)
		}
		header.Del("Set-Cookie")
		for _, line := range kept {
			header.Add("Set-Cookie", line)
		}
	}
	http.SetCookie(w, c)
}
