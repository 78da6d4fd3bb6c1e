package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

// UpsertUser inserts or refreshes a user; blank incoming fields keep the
// stored values. RETURNING hands back the canonical row in one round trip.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return apperror.ValidationFailed("id", "user id is required")
	}

	now := time.Now().UTC()
	var u model.User
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
			name       = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			email      = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			image      = COALESCE(NULLIF(EXCLUDED.image, ''), users.image),
			updated_at = EXCLUDED.updated_at
		 RETURNING id, name, email, image, created_at, updated_at`,
		user.ID, user.Name, user.Email, user.Image, now,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting user %s: %w", user.ID, err)
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	*user = u
	return nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, image, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
