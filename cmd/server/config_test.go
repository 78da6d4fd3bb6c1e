package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/server"
	"github.com/sakif/stackit/internal/service"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := loadSettings(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, s.server.Port)
	assert.Equal(t, server.DriverSQLite, s.server.DBDriver)
	assert.Equal(t, "data/stackit.db", s.server.DBPath)
	assert.Equal(t, auth.DefaultTTL, s.server.SessionTTL)
	assert.Equal(t, service.VotePolicyNoop, s.server.VotePolicy)
	assert.Equal(t, "http://localhost:8080/auth/google/callback", s.server.GoogleCallbackURL)
	assert.Equal(t, slog.LevelInfo, s.logLevel)
	assert.Equal(t, "text", s.logFormat)
	assert.Empty(t, s.server.JWTSecret)
}

func TestLoadSettings_Overrides(t *testing.T) {
	s, err := loadSettings(envMap(map[string]string{
		"PORT":               "9000",
		"DB_DRIVER":          "postgres",
		"DATABASE_URL":       "postgres://u:p@localhost/stackit",
		"JWT_SECRET":         "0123456789abcdef0123",
		"SESSION_TTL":        "2h",
		"VOTE_REPEAT_POLICY": "retract",
		"LOG_LEVEL":          "debug",
		"LOG_FORMAT":         "JSON",
		"GOOGLE_CLIENT_ID":   "id",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, s.server.Port)
	assert.Equal(t, server.DriverPostgres, s.server.DBDriver)
	assert.Equal(t, "postgres://u:p@localhost/stackit", s.server.DatabaseURL)
	assert.Equal(t, 2*time.Hour, s.server.SessionTTL)
	assert.Equal(t, service.VotePolicyRetract, s.server.VotePolicy)
	assert.Equal(t, slog.LevelDebug, s.logLevel)
	assert.Equal(t, "json", s.logFormat)
	assert.Equal(t, "http://localhost:9000/auth/google/callback", s.server.GoogleCallbackURL)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"port not a number":    {"PORT": "eighty"},
		"port out of range":    {"PORT": "70000"},
		"unknown driver":       {"DB_DRIVER": "mysql"},
		"postgres without url": {"DB_DRIVER": "postgres"},
		"bad ttl":              {"SESSION_TTL": "forever"},
		"negative ttl":         {"SESSION_TTL": "-1h"},
		"unknown vote policy":  {"VOTE_REPEAT_POLICY": "toggle"},
		"unknown log level":    {"LOG_LEVEL": "loud"},
		"unknown log format":   {"LOG_FORMAT": "xml"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadSettings(envMap(env))
			assert.Error(t, err)
		})
	}
}
