// Package postgres implements repository.Store on PostgreSQL with pgx.
//
// It mirrors the sqlite package statement for statement; the differences are
// the engine's: $n placeholders, TIMESTAMPTZ, tags stored as TEXT[] on the
// question row, and a real connection pool instead of a single connection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/stackit/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// SQLSTATE codes we translate into domain errors.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// DB wraps a pgxpool.Pool and implements repository.Store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to PostgreSQL, verifies the connection and runs migrations.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database config: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	logger.Debug("postgres store ready", slog.Int("max_conns", int(poolCfg.MaxConns)))
	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction. The deferred rollback is a no-op once the
// transaction has committed.
func (db *DB) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: committing transaction: %w", err)
	}
	return nil
}

// pgCode returns the SQLSTATE of a PostgreSQL error, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		image      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		tags        TEXT[] NOT NULL DEFAULT '{}',
		author_id   TEXT NOT NULL REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL,
		votes       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_tags ON questions USING GIN (tags)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id          TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		author_id   TEXT NOT NULL REFERENCES users(id),
		content     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		votes       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_question ON comments (question_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id),
		question_id TEXT REFERENCES questions(id) ON DELETE CASCADE,
		comment_id  TEXT REFERENCES comments(id) ON DELETE CASCADE,
		vote_type   TEXT NOT NULL CHECK (vote_type IN ('UP', 'DOWN')),
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CHECK ((question_id IS NULL) <> (comment_id IS NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_votes_user_question
		ON votes (user_id, question_id) WHERE question_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_votes_user_comment
		ON votes (user_id, comment_id) WHERE comment_id IS NOT NULL`,
}

func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
