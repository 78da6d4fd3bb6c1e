package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/stackit/internal/model"
)

// CookieName is the session cookie set by the OAuth callback.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow the
// identity stored in a request context.
type contextKey string

const identityKey contextKey = "identity"

var errNoToken = errors.New("auth: no session token")

// RequireAuth rejects requests without a valid session with 401 and puts the
// resolved identity into the context of the rest.
//
// tokens may be nil (no JWT_SECRET configured): then every request is
// anonymous and protected routes always answer 401.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth resolves the identity when a valid token is present and lets
// anonymous requests through untouched. An invalid token is treated as no
// token at all.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := resolve(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, or nil when the request
// is anonymous.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey).(*model.Identity)
	return id
}

// resolve extracts the session token (Authorization: Bearer first, then the
// cookie) and validates it.
func resolve(r *http.Request, tokens *TokenService) (*model.Identity, error) {
	if tokens == nil {
		return nil, errNoToken
	}

	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			raw = strings.TrimSpace(value)
		}
	}
	if raw == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return nil, errNoToken
	}

	return tokens.Validate(raw)
}
