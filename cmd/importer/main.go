// Command importer loads the flat-file data of the first StackIt release into
// the configured database.
//
//	importer -file data/questions.json
//
// It reads the same DB_DRIVER, DB_PATH and DATABASE_URL variables (and .env
// file) as the server. Running it twice is harmless: existing questions and
// comments are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sakif/stackit/internal/legacy"
	"github.com/sakif/stackit/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stderr))
}

func run(args []string, getenv func(string) string, stderr io.Writer) int {
	flags := flag.NewFlagSet("importer", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", "data/questions.json", "path to the legacy questions.json")
	verbose := flags.Bool("v", false, "log every imported question")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to read .env file", slog.String("error", err.Error()))
		return 1
	}

	questions, err := legacy.LoadFile(*file)
	if err != nil {
		logger.Error("cannot read legacy data", slog.String("file", *file), slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := server.Config{
		DBDriver:    getenv("DB_DRIVER"),
		DBPath:      getenv("DB_PATH"),
		DatabaseURL: getenv("DATABASE_URL"),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/stackit.db"
	}
	store, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("cannot open database", slog.String("error", err.Error()))
		return 1
	}
	defer store.Close()

	stats, err := legacy.NewImporter(store, logger).Import(ctx, questions)
	if err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		return 1
	}

	fmt.Fprintf(stderr, "imported %d questions, %d comments, %d users (skipped %d questions, %d comments already present)\n",
		stats.Questions, stats.Comments, stats.Users, stats.SkippedQuestions, stats.SkippedComments)
	return 0
}
