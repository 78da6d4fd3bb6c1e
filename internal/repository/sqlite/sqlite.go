// Package sqlite implements repository.Store on top of SQLite using the pure
// Go modernc.org/sqlite driver.
//
// CONNECTION MODEL:
// The pool is pinned to a single connection. SQLite allows one writer at a
// time anyway, and a single connection gives us three properties for free:
//   - transactions never fail with SQLITE_BUSY,
//   - PRAGMA settings (foreign_keys) apply to every statement,
//   - ":memory:" databases are shared by every caller instead of each pool
//     connection getting its own empty database.
//
// Consequence: code running inside a transaction must only use the *sql.Tx,
// never db.conn, or it deadlocks waiting for the connection it already holds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/stackit/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// queryer is satisfied by both *sql.DB and *sql.Tx so helpers can run
// inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/stackit.db" → file-based database
//   - ":memory:"        → in-memory database, used by tests
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// journal_mode reports "memory" for in-memory databases instead of
	// failing, so this is safe for tests too.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Cascading deletes depend on this. SQLite ships with it OFF.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	logger.Debug("sqlite store ready", slog.String("path", dbPath))
	return db, nil
}

// dsn adds connection-level pragmas for file databases so they survive a
// reconnect of the pool's single connection.
func dsn(dbPath string) string {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction. fn's error is returned unchanged so
// domain errors (NotFound, Conflict) pass through untouched.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn("sqlite: rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent.
//
// CASCADE CHAIN:
//
//	questions ─┬─< question_tags
//	           ├─< comments ──< votes (comment_id)
//	           └─< votes (question_id)
//
// A single DELETE FROM questions therefore removes the whole subtree.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL DEFAULT '',
			image      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS questions (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			author_id   TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL,
			votes       INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS question_tags (
			question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			tag         TEXT NOT NULL,
			PRIMARY KEY (question_id, position),
			UNIQUE (question_id, tag)
		);
		CREATE INDEX IF NOT EXISTS idx_question_tags_tag ON question_tags(tag);
	`)
	if err != nil {
		return fmt.Errorf("creating questions tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id          TEXT PRIMARY KEY,
			question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			author_id   TEXT NOT NULL REFERENCES users(id),
			content     TEXT NOT NULL,
			created_at  DATETIME NOT NULL,
			votes       INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_comments_question ON comments(question_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	// Exactly one of question_id / comment_id is set. The partial unique
	// indexes enforce one vote per (user, target).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id),
			question_id TEXT REFERENCES questions(id) ON DELETE CASCADE,
			comment_id  TEXT REFERENCES comments(id) ON DELETE CASCADE,
			vote_type   TEXT NOT NULL CHECK (vote_type IN ('UP', 'DOWN')),
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL,
			CHECK ((question_id IS NULL) <> (comment_id IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_votes_user_question
			ON votes(user_id, question_id) WHERE question_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS ux_votes_user_comment
			ON votes(user_id, comment_id) WHERE comment_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	return nil
}

// maxBatch caps the ids bound into one IN (...) list. SQLite rejects a
// statement with more than 32766 parameters, and listings are unpaginated.
const maxBatch = 500

// batches splits ids into consecutive slices of at most size elements.
func batches(ids []string, size int) [][]string {
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// placeholders returns "?,?,?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// rowsAffected returns how many rows a statement touched.
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
