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
	"github.com/sakif/stackit/internal/repository"
)

const questionColumns = `
	q.id, q.title, q.description, q.tags, q.author_id, q.created_at, q.votes,
	u.name, u.image,
	(SELECT COUNT(*) FROM comments c WHERE c.question_id = q.id)`

func scanQuestion(row pgx.Row) (model.Question, error) {
	var q model.Question
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.Tags, &q.AuthorID, &q.CreatedAt, &q.Votes,
		&q.Author.Name, &q.Author.Image,
		&q.CommentCount,
	)
	q.Author.ID = q.AuthorID
	q.CreatedAt = q.CreatedAt.UTC()
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q, err
}

// CreateQuestion inserts a question. Tags live on the row as TEXT[], which
// keeps their order without a side table.
func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = xid.New().String()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO questions (id, title, description, tags, author_id, created_at, votes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		q.ID, q.Title, q.Description, q.Tags, q.AuthorID, q.CreatedAt, q.Votes,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict("question", q.ID)
	}
	return nil
}

func (db *DB) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx,
		`SELECT `+questionColumns+`
		 FROM questions q
		 JOIN users u ON u.id = q.author_id
		 WHERE q.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("postgres: getting question %s: %w", id, err)
	}
	return &q, nil
}

// ListQuestions returns questions newest first, ties broken by id.
// A NULL limit means "no limit" to PostgreSQL.
func (db *DB) ListQuestions(ctx context.Context, opts repository.ListOptions) ([]model.Question, error) {
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	var tag *string
	if opts.Tag != "" {
		tag = &opts.Tag
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions q
		 JOIN users u ON u.id = q.author_id
		 WHERE $1::text IS NULL OR $1::text = ANY(q.tags)
		 ORDER BY q.created_at DESC, q.id DESC
		 LIMIT $2 OFFSET $3`,
		tag, limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing questions: %w", err)
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating question rows: %w", err)
	}
	return questions, nil
}

// DeleteQuestion removes a question; ON DELETE CASCADE takes its comments and
// every vote on the question or those comments in the same statement.
func (db *DB) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting question %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("question", id)
	}
	return nil
}
