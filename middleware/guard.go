package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/beranw/foliogate/session"
)

// DefaultCookieName is the session cookie used when Options leaves
// CookieName empty.
const DefaultCookieName = "fg_session"

// Options configures the Guard and CSRF middleware.
type Options struct {
	Sessions   *session.Manager
	CookieName string
	// LoginURL receives unauthenticated browsers. Empty means plain 401.
	LoginURL string
	// AllowedIPs restricts the guarded surface to these client IPs.
	// Empty means no restriction. Non-listed clients get 403 before any
	// session lookup.
	AllowedIPs []string
}

func (o Options) cookieName() string {
	if o.CookieName == "" {
		return DefaultCookieName
	}
	return o.CookieName
}

type sessionContextKey struct{}

// SessionFromContext returns the session Guard attached to the request.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok
}

// Guard requires a live authenticated session. It enforces the IP
// allowlist, resolves the session cookie through Manager.Current (which
// applies the idle timeout and slides activity), and attaches the
// session to the request context.
func Guard(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Sessions == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(opts.AllowedIPs) > 0 && !ipAllowed(clientIP(r), opts.AllowedIPs) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			cookie, err := r.Cookie(opts.cookieName())
			if err != nil {
				deny(w, r, opts)
				return
			}

			sess, err := opts.Sessions.Current(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
					deny(w, r, opts)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !sess.Authenticated {
				deny(w, r, opts)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRF rejects mutating requests whose token does not match the
// session's. The token is read from the X-CSRF-Token header or the
// _csrf form field. Safe methods pass through untouched.
func CSRF(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if opts.Sessions == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			cookie, err := r.Cookie(opts.cookieName())
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				token = r.PostFormValue("_csrf")
			}

			if err := opts.Sessions.VerifyCSRF(r.Context(), cookie.Value, token); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.LoginURL != "" {
		http.Redirect(w, r, opts.LoginURL, http.StatusSeeOther)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func ipAllowed(ip string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == ip {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
