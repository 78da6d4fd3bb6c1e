package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/service"
)

const stateCookieName = "oauth_state"

// OAuthProvider is the part of auth.GoogleProvider the handler needs. Tests
// substitute a fake that never talks to Google.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// AuthHandler manages the Google OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → receive the code, sign the user in, set the cookie
//   - HandleLogout         → clear the cookie
//   - HandleMe             → return the signed-in user's own profile
//
// google may be nil when no OAuth client is configured; the server then
// does not register the login routes at all.
type AuthHandler struct {
	google OAuthProvider
	auth   *service.AuthService
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(google OAuthProvider, authService *service.AuthService, tokens *auth.TokenService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		google: google,
		auth:   authService,
		tokens: tokens,
		logger: logger,
	}
}

// HandleGoogleLogin redirects the user to Google's authorization page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into a short-lived HttpOnly cookie and into
// the authorization URL. The callback only proceeds when the two match,
// which proves the flow was started by this browser on this server.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google profile
//  3. Upsert the user and issue a session token (AuthService.LoginGoogle)
//  4. Store the token in an HttpOnly cookie
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for the Google profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Sign in ---
	result, err := h.auth.LoginGoogle(r.Context(), profile)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.String("sub", profile.Sub),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Session cookie ---
	// Secure should be set when served over HTTPS.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// --- Step 5: Back to the app ---
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs: the token stays valid until it expires, but
// without the cookie the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the signed-in user's profile, including the email.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Profile(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
