package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

const commentColumns = `
	c.id, c.question_id, c.author_id, c.content, c.created_at, c.votes,
	u.name, u.image`

func scanComment(row pgx.Row) (model.Comment, error) {
	var c model.Comment
	err := row.Scan(
		&c.ID, &c.QuestionID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.Votes,
		&c.Author.Name, &c.Author.Image,
	)
	c.Author.ID = c.AuthorID
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

// CreateComment locks the parent question FOR SHARE before inserting, so a
// concurrent DeleteQuestion either runs first (NotFound here) or waits for
// this transaction and then cascades the new comment away with the rest.
func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return db.withTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM questions WHERE id = $1 FOR SHARE`, c.QuestionID,
		).Scan(&one)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.NotFound("question", c.QuestionID)
			}
			return fmt.Errorf("postgres: checking question %s: %w", c.QuestionID, err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO comments (id, question_id, author_id, content, created_at, votes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			c.ID, c.QuestionID, c.AuthorID, c.Content, c.CreatedAt, c.Votes,
		)
		if err != nil {
			if pgCode(err) == codeForeignKeyViolation {
				return apperror.NotFound("question", c.QuestionID)
			}
			return fmt.Errorf("postgres: creating comment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.Conflict("comment", c.ID)
		}
		return nil
	})
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.pool.QueryRow(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("postgres: getting comment %s: %w", id, err)
	}
	return &c, nil
}

func (db *DB) ListComments(ctx context.Context, questionID string) ([]model.Comment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.question_id = $1
		 ORDER BY c.created_at ASC, c.id ASC`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing comments of %s: %w", questionID, err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating comment rows: %w", err)
	}
	return comments, nil
}

func (db *DB) DeleteComment(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}
