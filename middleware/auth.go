package middleware

import (
	"net"
	"net/http"

	"gitea.com/go-chi/session"

	"github.com/blogem/otel-poc/userctx"
)

// Session keys shared with the auth controller
const (
	SessionUserIDKey        = "user_id"
	SessionUserEmailKey     = "user_email"
	SessionRedirectAfterKey = "redirect_after_login"
)

// RequireLogin ensures the user is authenticated
// If not authenticated, redirects to /login and stores the intended destination
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.GetSession(r)
		userID, _ := sess.Get(SessionUserIDKey).(string)

		if userID == "" {
			// Store the intended destination for redirect after login
			_ = sess.Set(SessionRedirectAfterKey, r.URL.Path)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		email, _ := sess.Get(SessionUserEmailKey).(string)
		ctx := userctx.WithUser(r.Context(), userctx.User{ID: userID, Email: email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLoopback only lets requests from the local machine through.
// Forwarding headers are ignored, the direct peer address decides.
func RequireLoopback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(RemoteIP(r))
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(userctx.WithUser(r.Context(), userctx.User{ID: "local"})))
	})
}

// DashboardAccess picks RequireLogin when OpenID Connect is configured and
// RequireLoopback otherwise
func DashboardAccess(oidcEnabled bool) func(http.Handler) http.Handler {
	if oidcEnabled {
		return RequireLogin
	}
	return RequireLoopback
}
