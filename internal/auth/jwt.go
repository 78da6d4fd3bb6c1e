// Package auth is the identity resolver: it turns an inbound request into a
// *model.Identity, or nil for anonymous callers.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/google/login → redirected to Google
//  2. Google calls back /auth/google/callback with a code
//  3. Server exchanges the code for the Google profile, upserts the user
//  4. Server issues a session JWT carrying the profile, stored in an
//     HttpOnly cookie
//  5. On later requests the middleware validates the JWT (cookie or
//     Authorization: Bearer) and puts the Identity in the request context
//
// The token carries name, email and picture next to the subject, so resolving
// an identity never needs a database lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/stackit/internal/model"
)

const (
	issuer     = "stackit"
	DefaultTTL = 24 * time.Hour
)

// TokenService handles session JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A ttl <= 0 selects DefaultTTL.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued sessions stay valid. The handler uses it for the
// cookie's Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" is the provider-issued user id; the
// profile fields mirror the Google userinfo names.
type claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a session token for the identity, valid for the service TTL.
func (s *TokenService) Issue(id *model.Identity) (string, error) {
	return s.IssueWithDuration(id, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Tests use negative
// durations to produce expired tokens.
func (s *TokenService) IssueWithDuration(id *model.Identity, d time.Duration) (string, error) {
	if id == nil || id.ID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := time.Now()

	c := claims{
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token and returns the identity it
// carries.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - signature is valid HS256 (jwt.WithValidMethods blocks "none" and
//     algorithm confusion)
//   - token is not expired and has an expiry at all
//   - issuer is "stackit"
func (s *TokenService) Validate(tokenStr string) (*model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &model.Identity{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
		Image: c.Picture,
	}, nil
}
