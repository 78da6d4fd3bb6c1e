// Package main is the entry point for the StackIt forum server.
//
// The main package is kept minimal. Its job is to:
//  1. Read configuration (.env file, then environment variables)
//  2. Create the logger
//  3. Build and start the server
//
// All actual logic lives in internal/server and the packages it wires.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sakif/stackit/internal/server"
)

func main() {
	// === 1. LOAD .env ===
	// godotenv.Load never overrides variables that are already set, so the
	// real environment always wins. A missing .env file is normal in
	// production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. READ CONFIGURATION ===
	cfg, err := loadSettings(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 3. SET UP LOGGING ===
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.logFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)

	// === 4. DATABASE DIRECTORY ===
	// os.MkdirAll is like `mkdir -p`: the data directory is created on first
	// run.
	if cfg.server.DBDriver == server.DriverSQLite && cfg.server.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.server.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg.server, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
