package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/stackit/internal/model"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleUser is the part of Google's OpenID userinfo response we use.
// "sub" is Google's stable account id and becomes the user's primary key.
type GoogleUser struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Identity converts the Google profile into the forum's identity.
func (g *GoogleUser) Identity() *model.Identity {
	return &model.Identity{
		ID:    g.Sub,
		Name:  g.Name,
		Email: g.Email,
		Image: g.Picture,
	}
}

// GoogleProvider wraps golang.org/x/oauth2 for Google's authorization code
// flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the user to Google with our ClientID and scopes.
//  2. The user approves on Google.
//  3. Google redirects back to CallbackURL with a short-lived code.
//  4. We exchange the code for an access token, server to server, using the
//     ClientSecret. The token never reaches the browser.
//  5. We call the userinfo endpoint with that token.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider.
//
// callbackURL must match an "Authorized redirect URI" of the OAuth client,
// e.g. "http://localhost:8080/auth/google/callback".
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the Google consent URL. state is echoed back on the
// callback and compared with the state cookie to block login CSRF.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the caller's Google profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// Client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}
	if user.Sub == "" {
		return nil, fmt.Errorf("auth: Google returned a profile without a subject")
	}

	return &user, nil
}
