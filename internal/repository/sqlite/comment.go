package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

const commentColumns = `
	c.id, c.question_id, c.author_id, c.content, c.created_at, c.votes,
	u.name, u.image`

func scanComment(row rowScanner) (model.Comment, error) {
	var c model.Comment
	err := row.Scan(
		&c.ID, &c.QuestionID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.Votes,
		&c.Author.Name, &c.Author.Image,
	)
	c.Author.ID = c.AuthorID
	return c, err
}

// CreateComment attaches a comment to an existing question.
//
// The parent check and the insert share one transaction, and the foreign key
// on comments.question_id backs it up: a comment can never land on a
// question that was deleted concurrently.
func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM questions WHERE id = ?`, c.QuestionID,
		).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("question", c.QuestionID)
			}
			return fmt.Errorf("sqlite: checking question %s: %w", c.QuestionID, err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, question_id, author_id, content, created_at, votes)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			c.ID, c.QuestionID, c.AuthorID, c.Content, c.CreatedAt.UTC(), c.Votes,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating comment: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Conflict("comment", c.ID)
		}
		return nil
	})
}

// GetComment retrieves one comment with its author.
func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns a question's comments oldest first. An unknown
// question simply has no comments; existence is the caller's concern.
func (db *DB) ListComments(ctx context.Context, questionID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+commentColumns+`
		 FROM comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.question_id = ?
		 ORDER BY c.created_at ASC, c.id ASC`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of %s: %w", questionID, err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comment rows: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment; its votes go with it via ON DELETE CASCADE.
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}
