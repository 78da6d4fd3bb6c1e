package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/server"
	"github.com/sakif/stackit/internal/service"
)

// settings is everything main reads from the environment.
type settings struct {
	server    server.Config
	logLevel  slog.Level
	logFormat string // "text" or "json"
}

// loadSettings reads the configuration through getenv (os.Getenv in
// production, a map in tests). Any invalid value is an error: the server
// refuses to start half-configured.
func loadSettings(getenv func(string) string) (settings, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var s settings

	port, err := strconv.Atoi(env("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return s, fmt.Errorf("invalid PORT %q", getenv("PORT"))
	}

	driver := env("DB_DRIVER", server.DriverSQLite)
	if driver != server.DriverSQLite && driver != server.DriverPostgres {
		return s, fmt.Errorf("invalid DB_DRIVER %q (want sqlite or postgres)", driver)
	}
	databaseURL := env("DATABASE_URL", "")
	if driver == server.DriverPostgres && databaseURL == "" {
		return s, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
	}

	ttl := auth.DefaultTTL
	if raw := env("SESSION_TTL", ""); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return s, fmt.Errorf("invalid SESSION_TTL %q", raw)
		}
	}

	policy, err := service.ParseVotePolicy(env("VOTE_REPEAT_POLICY", ""))
	if err != nil {
		return s, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return s, fmt.Errorf("invalid LOG_LEVEL %q", getenv("LOG_LEVEL"))
	}

	format := strings.ToLower(env("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return s, fmt.Errorf("invalid LOG_FORMAT %q (want text or json)", format)
	}

	s.server = server.Config{
		Port:               port,
		DBDriver:           driver,
		DBPath:             env("DB_PATH", "data/stackit.db"),
		DatabaseURL:        databaseURL,
		JWTSecret:          env("JWT_SECRET", ""),
		SessionTTL:         ttl,
		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  env("GOOGLE_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", port)),
		VotePolicy:         policy,
	}
	s.logLevel = level
	s.logFormat = format
	return s, nil
}
