package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/insights/internal/config"
	"github.com/JonMunkholm/insights/internal/core"
)

// AdminCookie is the name of the admin session cookie.
const AdminCookie = "insights_admin"

// AdminHeader lets API clients authenticate without a session.
const AdminHeader = "X-Admin-Secret"

// AdminGate checks the shared admin secret and issues signed session
// cookies. A gate without a configured secret rejects every admin action.
type AdminGate struct {
	hash   []byte
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewAdminGate builds a gate from the security settings. A plaintext
// ADMIN_PASSWORD is hashed here so only the hash stays in memory.
func NewAdminGate(cfg *config.SecurityConfig) (*AdminGate, error) {
	g := &AdminGate{ttl: cfg.SessionTTL, secure: cfg.SecureCookies, now: time.Now}
	if g.ttl <= 0 {
		g.ttl = 12 * time.Hour
	}

	switch {
	case cfg.AdminPasswordHash != "":
		if _, err := bcrypt.Cost([]byte(cfg.AdminPasswordHash)); err != nil {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
		}
		g.hash = []byte(cfg.AdminPasswordHash)
	case cfg.AdminPassword != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		g.hash = hash
	}

	if cfg.SessionKey != "" {
		g.key = []byte(cfg.SessionKey)
	} else {
		g.key = make([]byte, 32)
		if _, err := rand.Read(g.key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	return g, nil
}

// Enabled reports whether an admin secret is configured.
func (g *AdminGate) Enabled() bool {
	return len(g.hash) > 0
}

// Check compares secret with the configured admin secret.
func (g *AdminGate) Check(secret string) bool {
	if !g.Enabled() || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(secret)) == nil
}

// Login verifies secret and sets the session cookie.
func (g *AdminGate) Login(w http.ResponseWriter, secret string) error {
	if !g.Check(secret) {
		return core.ErrBadCredentials
	}
	expires := g.now().Add(g.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookie,
		Value:    g.sign(expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Logout expires the session cookie.
func (g *AdminGate) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// sign encodes the expiry and its HMAC as "<unix>.<mac>".
func (g *AdminGate) sign(expires time.Time) string {
	payload := strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + base64.RawURLEncoding.EncodeToString(g.mac(payload))
}

func (g *AdminGate) mac(payload string) []byte {
	h := hmac.New(sha256.New, g.key)
	h.Write([]byte(payload))
	return h.Sum(nil)
}

var errBadSession = errors.New("invalid admin session")

// verify checks a cookie value produced by sign.
func (g *AdminGate) verify(value string) error {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok {
		return errBadSession
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, g.mac(payload)) {
		return errBadSession
	}
	unix, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return errBadSession
	}
	if !g.now().Before(time.Unix(unix, 0)) {
		return fmt.Errorf("%w: expired", errBadSession)
	}
	return nil
}

// Authenticated reports whether r carries a valid session or admin header.
func (g *AdminGate) Authenticated(r *http.Request) bool {
	if !g.Enabled() {
		return false
	}
	if c, err := r.Cookie(AdminCookie); err == nil && c.Value != "" {
		if err := g.verify(c.Value); err == nil {
			return true
		}
	}
	if secret := r.Header.Get(AdminHeader); secret != "" {
		if g.Check(secret) {
			return true
		}
		slog.Warn("auth: invalid admin secret header",
			"path", r.URL.Path,
			"method", r.Method,
			"remote_addr", r.RemoteAddr,
		)
	}
	return false
}

// Identify marks the request context of authenticated admins. It never
// rejects a request.
func (g *AdminGate) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Authenticated(r) {
			r = r.WithContext(core.ContextWithAdmin(r.Context()))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests that Identify did not mark as admin. Browsers are
// sent to the login page; API clients get a JSON error.
func (g *AdminGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if core.IsAdmin(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("auth: admin action rejected",
			"path", r.URL.Path,
			"method", r.Method,
			"remote_addr", r.RemoteAddr,
		)

		if strings.HasPrefix(r.URL.Path, "/api/") || r.Header.Get("HX-Request") == "true" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"admin login required","code":"AUTH002"}`)
			return
		}
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)
	})
}
