// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects the store, services,
// handlers, middleware and routes. It is the composition root, so every
// dependency is built in one place (New/setupRoutes) rather than scattered
// across the codebase.
//
// DEPENDENCY INJECTION FLOW:
//
//	Config → repository.Store (sqlite or postgres)
//	       → ForumService, AuthService
//	       → ForumHandler, AuthHandler, HealthHandler
//	       → chi routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/handler"
	"github.com/sakif/stackit/internal/middleware"
	"github.com/sakif/stackit/internal/repository"
	"github.com/sakif/stackit/internal/repository/postgres"
	"github.com/sakif/stackit/internal/repository/sqlite"
	"github.com/sakif/stackit/internal/service"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration. cmd/server fills it from the
// environment.
type Config struct {
	Port int

	DBDriver    string // DriverSQLite or DriverPostgres
	DBPath      string // SQLite file, ":memory:" for throwaway runs
	DatabaseURL string // PostgreSQL DSN

	// JWTSecret signs session tokens. Empty disables sign-in: every request
	// is anonymous, reads work and writes answer 401.
	JWTSecret  string
	SessionTTL time.Duration

	// Google OAuth client. The login routes are only registered when both
	// the id and the secret are set.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	VotePolicy service.VotePolicy
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after the HTTP server has
// drained, so in-flight requests never see a closed database.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	store  repository.Store
	tokens *auth.TokenService
}

// New opens the configured store and builds a Server around it.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// OpenStore connects to the store selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case "", DriverSQLite:
		db, err := sqlite.New(cfg.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		return db, nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
		db, err := postgres.New(ctx, postgres.Config{DSN: cfg.DatabaseURL}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// NewWithStore builds a Server on an already open store. The Server takes
// ownership of the store.
func NewWithStore(cfg Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("creating token service: %w", err)
		}
		s.tokens = tokens
	} else {
		logger.Warn("JWT_SECRET not set, sign-in is disabled and all requests are anonymous")
	}

	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/health
//	GET    /api/questions                                   (optional auth)
//	POST   /api/questions                                   (auth)
//	GET    /api/questions/{id}                              (optional auth)
//	DELETE /api/questions/{id}                              (auth)
//	POST   /api/questions/{id}/vote                         (auth)
//	DELETE /api/questions/{id}/vote                         (auth)
//	POST   /api/questions/{id}/comments                     (auth)
//	DELETE /api/questions/{id}/comments/{commentId}         (auth)
//	POST   /api/questions/{id}/comments/{commentId}/vote    (auth)
//	DELETE /api/questions/{id}/comments/{commentId}/vote    (auth)
//	GET    /api/me                                          (auth)
//	GET    /auth/google/login                               (when Google is configured)
//	GET    /auth/google/callback                            (when Google is configured)
//	POST   /auth/logout
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID assigns the id the logger prints
//  2. RealIP extracts the client IP from proxy headers
//  3. Logger logs each request with timing info
//  4. Recoverer turns panics into 500s, inside the logger so they get logged
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	forumService := service.NewForumService(s.store, s.config.VotePolicy, s.logger)
	authService := service.NewAuthService(s.store, s.tokens, s.logger)

	forumHandler := handler.NewForumHandler(forumService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	var google handler.OAuthProvider
	if s.config.GoogleClientID != "" && s.config.GoogleClientSecret != "" {
		google = auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)
	}
	authHandler := handler.NewAuthHandler(google, authService, s.tokens, s.logger)

	requireAuth := auth.RequireAuth(s.tokens)
	optionalAuth := auth.OptionalAuth(s.tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/questions", forumHandler.HandleListQuestions)
			r.Get("/questions/{id}", forumHandler.HandleGetQuestion)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)

			r.Post("/questions", forumHandler.HandleCreateQuestion)
			r.Delete("/questions/{id}", forumHandler.HandleDeleteQuestion)
			r.Post("/questions/{id}/vote", forumHandler.HandleVoteQuestion)
			r.Delete("/questions/{id}/vote", forumHandler.HandleRetractQuestionVote)

			r.Post("/questions/{id}/comments", forumHandler.HandleCreateComment)
			r.Delete("/questions/{id}/comments/{commentId}", forumHandler.HandleDeleteComment)
			r.Post("/questions/{id}/comments/{commentId}/vote", forumHandler.HandleVoteComment)
			r.Delete("/questions/{id}/comments/{commentId}/vote", forumHandler.HandleRetractCommentVote)
		})
	})

	s.router.Route("/auth", func(r chi.Router) {
		if google != nil && s.tokens != nil {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("Google OAuth not configured, login routes are disabled")
		}
		r.Post("/logout", authHandler.HandleLogout)
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("driver", s.config.DBDriver),
			slog.String("vote_policy", string(s.config.VotePolicy)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
