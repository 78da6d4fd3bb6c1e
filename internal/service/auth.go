package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// AuthService sits between the auth handler and the user repository:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT)
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService creates an AuthService. tokens may be nil when sessions are
// disabled; LoginGoogle then fails and Profile still works for callers that
// were resolved some other way.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles the stored user and the session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginGoogle completes a Google sign-in: it upserts the user keyed by the
// Google subject and issues a session token carrying the refreshed profile.
//
// Upsert keeps sign-in idempotent: the first login inserts, later logins
// refresh name and image, and the user's questions stay linked because the
// primary key never changes.
func (s *AuthService) LoginGoogle(ctx context.Context, profile *auth.GoogleUser) (*AuthResult, error) {
	if profile == nil || profile.Sub == "" {
		return nil, apperror.ValidationFailed("sub", "Google profile has no subject")
	}
	if s.tokens == nil {
		return nil, fmt.Errorf("service/auth: sessions are disabled (no JWT secret configured)")
	}

	user := profile.Identity().User()
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", profile.Sub, err)
	}

	s.logger.Info("user signed in via Google",
		slog.String("user", user.ID),
		slog.String("name", user.Name),
	)

	token, err := s.tokens.Issue(&model.Identity{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Image: user.Image,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// Profile returns the caller's own user record, including the email that
// public projections never show. A signed-in caller whose row does not exist
// yet (valid token, empty database) gets it created from the token.
func (s *AuthService) Profile(ctx context.Context, caller *model.Identity) (*model.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, apperror.Unauthorized("sign in to view your profile")
	}

	user, err := s.users.GetUser(ctx, caller.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		if apperror.IsDomain(err) {
			return nil, err
		}
		return nil, apperror.Storage("loading profile", err)
	}

	user = caller.User()
	if err := s.users.UpsertUser(ctx, user); err != nil {
		if apperror.IsDomain(err) {
			return nil, err
		}
		return nil, apperror.Storage("saving profile", err)
	}
	return user, nil
}
