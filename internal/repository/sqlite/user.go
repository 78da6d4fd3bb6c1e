package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

// UpsertUser inserts the user or refreshes the profile of an existing one.
//
// The primary key is the identity provider's subject, so there is no lookup
// by a secondary key: ON CONFLICT(id) does the whole job in one statement.
// Blank incoming fields never overwrite stored values, so a sparse identity
// (for example a token without an email claim) cannot erase the profile.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return apperror.ValidationFailed("id", "user id is required")
	}

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name       = CASE WHEN excluded.name  <> '' THEN excluded.name  ELSE users.name  END,
			email      = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			image      = CASE WHEN excluded.image <> '' THEN excluded.image ELSE users.image END,
			updated_at = excluded.updated_at`,
		user.ID, user.Name, user.Email, user.Image, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err)
	}

	// Read the canonical row back: CreatedAt of an existing user must be the
	// original one, and blank fields were filled from storage.
	stored, err := db.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUser retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, image, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}
