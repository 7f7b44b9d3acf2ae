package controllers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"gitea.com/go-chi/session"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/authenticator"
	"github.com/blogem/otel-poc/middleware"
	"github.com/blogem/otel-poc/telemetry"
)

const sessionStateKey = "state"

// AuthController handles the dashboard login flow
type AuthController struct {
	logger *zap.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(logger *zap.Logger) *AuthController {
	return &AuthController{logger: logger.Named("AuthController")}
}

// Login initiates the authentication process
func (ac *AuthController) Login(auth authenticator.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Generate random state
		state, err := generateRandomState()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		// Save the state in the session to validate in callback
		sess := session.GetSession(r)
		if err := sess.Set(sessionStateKey, state); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		http.Redirect(w, r, auth.GetAuthURL(state), http.StatusTemporaryRedirect)
	}
}

// Callback handles the redirect back from the identity provider
func (ac *AuthController) Callback(auth authenticator.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.GetSession(r)
		logger := telemetry.WithTrace(r.Context(), ac.logger)

		// Verify state
		storedState, _ := sess.Get(sessionStateKey).(string)
		if storedState == "" {
			writeError(w, http.StatusBadRequest, "State not found in session")
			return
		}
		if r.URL.Query().Get("state") != storedState {
			writeError(w, http.StatusBadRequest, "Invalid state parameter")
			return
		}

		token, err := auth.ExchangeCode(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			logger.Warn("code exchange failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Failed to exchange authorization code for a token")
			return
		}

		claims, err := auth.GetClaims(r.Context(), token)
		if err != nil {
			logger.Warn("id token verification failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Failed to verify ID Token")
			return
		}

		sub := claims.String("sub")
		if sub == "" {
			writeError(w, http.StatusUnauthorized, "ID Token has no subject")
			return
		}

		// Fall back to the subject when the provider does not share an email
		email := claims.String("email")
		if email == "" {
			email = sub
		}

		_ = sess.Set(middleware.SessionUserIDKey, sub)
		_ = sess.Set(middleware.SessionUserEmailKey, email)
		_ = sess.Delete(sessionStateKey)
		logger.Info("dashboard login", zap.String("user", email))

		http.Redirect(w, r, redirectTarget(sess), http.StatusSeeOther)
	}
}

// dashboardPath is where users land after login and logout
const dashboardPath = "/hangfire"

// Logout clears the session
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)
	_ = sess.Delete(middleware.SessionUserIDKey)
	_ = sess.Delete(middleware.SessionUserEmailKey)
	_ = sess.Delete(middleware.SessionRedirectAfterKey)

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// redirectTarget returns the stored local destination or the dashboard
func redirectTarget(sess session.Store) string {
	target, _ := sess.Get(middleware.SessionRedirectAfterKey).(string)
	_ = sess.Delete(middleware.SessionRedirectAfterKey)

	// Only local paths, never another host
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return dashboardPath
	}
	return target
}

// generateRandomState generates a random state value for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
