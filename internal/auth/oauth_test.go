package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

// fakeGoogle serves a token endpoint and a userinfo endpoint.
func fakeGoogle(t *testing.T, profile GoogleUser, userInfoStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if userInfoStatus != http.StatusOK {
			w.WriteHeader(userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogleProvider(srv *httptest.Server) *GoogleProvider {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/auth/google/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userInfoURL = srv.URL + "/userinfo"
	return p
}

func TestGoogleAuthURL_CarriesStateAndClient(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost:8080/auth/google/callback")

	u, err := url.Parse(p.AuthURL("state-abc"))
	if err != nil {
		t.Fatalf("AuthURL() is not a URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-abc" {
		t.Errorf("state = %q, want %q", q.Get("state"), "state-abc")
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if u.Host != "accounts.google.com" {
		t.Errorf("host = %q, want accounts.google.com", u.Host)
	}
}

func TestGoogleExchange_Success(t *testing.T) {
	profile := GoogleUser{Sub: "1234567890", Name: "Ada", Email: "ada@example.com", Picture: "https://img/ada"}
	p := newTestGoogleProvider(fakeGoogle(t, profile, http.StatusOK))

	got, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if *got != profile {
		t.Errorf("Exchange() = %+v, want %+v", got, profile)
	}

	id := got.Identity()
	if id.ID != "1234567890" || id.Image != "https://img/ada" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestGoogleExchange_BadCode(t *testing.T) {
	p := newTestGoogleProvider(fakeGoogle(t, GoogleUser{Sub: "1"}, http.StatusOK))

	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("Exchange() should fail for a rejected code")
	}
}

func TestGoogleExchange_UserInfoFailure(t *testing.T) {
	p := newTestGoogleProvider(fakeGoogle(t, GoogleUser{Sub: "1"}, http.StatusInternalServerError))

	if _, err := p.Exchange(context.Background(), "good-code"); err == nil {
		t.Error("Exchange() should fail when userinfo fails")
	}
}

func TestGoogleExchange_MissingSubject(t *testing.T) {
	p := newTestGoogleProvider(fakeGoogle(t, GoogleUser{Name: "nobody"}, http.StatusOK))

	if _, err := p.Exchange(context.Background(), "good-code"); err == nil {
		t.Error("Exchange() should reject a profile without sub")
	}
}
