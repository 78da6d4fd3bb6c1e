package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/handler"
	"github.com/sakif/stackit/internal/service"
)

// fakeGoogle stands in for auth.GoogleProvider.
type fakeGoogle struct {
	profile *auth.GoogleUser
	err     error
	gotCode string
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGoogle) Exchange(ctx context.Context, code string) (*auth.GoogleUser, error) {
	f.gotCode = code
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func newAuthHandler(t *testing.T, google *fakeGoogle) (*handler.AuthHandler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	authService := service.NewAuthService(env.db, env.tokens, quietLogger())
	return handler.NewAuthHandler(google, authService, env.tokens, quietLogger()), env
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callbackRequest(query, state string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	}
	return req
}

func TestGoogleLogin_SetsStateAndRedirects(t *testing.T) {
	h, _ := newAuthHandler(t, &fakeGoogle{})

	rr := httptest.NewRecorder()
	h.HandleGoogleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := cookieNamed(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.NotEmpty(t, state.Value)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestGoogleCallback_Success(t *testing.T) {
	google := &fakeGoogle{profile: &auth.GoogleUser{
		Sub: "g-42", Name: "Ada", Email: "ada@example.com", Picture: "ada.png",
	}}
	h, env := newAuthHandler(t, google)

	rr := httptest.NewRecorder()
	h.HandleGoogleCallback(rr, callbackRequest("code=the-code&state=s1", "s1"))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, "the-code", google.gotCode)

	session := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, int(env.tokens.TTL().Seconds()), session.MaxAge)

	id, err := env.tokens.Validate(session.Value)
	require.NoError(t, err)
	assert.Equal(t, "g-42", id.ID)

	user, err := env.db.GetUser(context.Background(), "g-42")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
}

func TestGoogleCallback_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		cookie     string
		exchange   error
		wantStatus int
	}{
		{"missing state cookie", "code=c&state=s1", "", nil, http.StatusBadRequest},
		{"state mismatch", "code=c&state=evil", "s1", nil, http.StatusBadRequest},
		{"missing code", "state=s1", "s1", nil, http.StatusBadRequest},
		{"user denied", "error=access_denied&state=s1", "s1", nil, http.StatusSeeOther},
		{"exchange fails", "code=c&state=s1", "s1", errors.New("invalid_grant"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newAuthHandler(t, &fakeGoogle{err: tt.exchange})

			rr := httptest.NewRecorder()
			h.HandleGoogleCallback(rr, callbackRequest(tt.query, tt.cookie))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Nil(t, cookieNamed(rr, auth.CookieName), "no session is issued")
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h, _ := newAuthHandler(t, &fakeGoogle{})

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	session := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, session)
	assert.Empty(t, session.Value)
	assert.Negative(t, session.MaxAge)
}

func TestMe(t *testing.T) {
	h, env := newAuthHandler(t, &fakeGoogle{})
	me := auth.RequireAuth(env.tokens)(http.HandlerFunc(h.HandleMe))

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		me.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("signed in via cookie", func(t *testing.T) {
		token, err := env.tokens.Issue(alice)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})

		rr := httptest.NewRecorder()
		me.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode[map[string]any](t, rr)
		assert.Equal(t, alice.ID, body["id"])
		assert.Equal(t, alice.Email, body["email"], "own profile includes the email")
	})
}
