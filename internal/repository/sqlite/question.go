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
	"github.com/sakif/stackit/internal/repository"
)

// questionColumns is shared by GetQuestion and ListQuestions so scanQuestion
// can read either result. The author is joined in; the comment count is a
// correlated subquery so it is always consistent with the comments table.
const questionColumns = `
	q.id, q.title, q.description, q.author_id, q.created_at, q.votes,
	u.name, u.image,
	(SELECT COUNT(*) FROM comments c WHERE c.question_id = q.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var q model.Question
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.AuthorID, &q.CreatedAt, &q.Votes,
		&q.Author.Name, &q.Author.Image,
		&q.CommentCount,
	)
	q.Author.ID = q.AuthorID
	q.Tags = []string{}
	return q, err
}

// CreateQuestion inserts a question and its tags in one transaction.
//
// KEY CONCEPTS:
//
//  1. CALLER-SUPPLIED IDS:
//     The legacy importer keeps the original ids and timestamps, so ID and
//     CreatedAt are only generated when empty.
//
//  2. ON CONFLICT(id) DO NOTHING:
//     A duplicate id inserts nothing and RowsAffected reports 0. We turn that
//     into apperror.Conflict instead of parsing driver error strings.
//
//  3. TAG POSITION:
//     Tags keep the order the author typed them in; position is part of the
//     primary key of question_tags.
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

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, title, description, author_id, created_at, votes)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			q.ID, q.Title, q.Description, q.AuthorID, q.CreatedAt.UTC(), q.Votes,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating question: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Conflict("question", q.ID)
		}

		for i, tag := range q.Tags {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO question_tags (question_id, position, tag) VALUES (?, ?, ?)`,
				q.ID, i, tag,
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding tag %q to question %s: %w", tag, q.ID, err)
			}
		}
		return nil
	})
}

// GetQuestion retrieves one question with its author, tags and comment count.
func (db *DB) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(db.conn.QueryRowContext(ctx,
		`SELECT `+questionColumns+`
		 FROM questions q
		 JOIN users u ON u.id = q.author_id
		 WHERE q.id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("sqlite: getting question %s: %w", id, err)
	}

	tags, err := db.loadTags(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if t, ok := tags[id]; ok {
		q.Tags = t
	}
	return &q, nil
}

// ListQuestions returns questions newest first. Ties on created_at are broken
// by id so paging never skips or repeats a row.
//
// SQLite only accepts OFFSET after a LIMIT, and LIMIT -1 means "no limit",
// which is how ListOptions.Limit == 0 is expressed.
func (db *DB) ListQuestions(ctx context.Context, opts repository.ListOptions) ([]model.Question, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + questionColumns + `
		FROM questions q
		JOIN users u ON u.id = q.author_id`
	args := []any{}
	if opts.Tag != "" {
		query += `
		WHERE EXISTS (
			SELECT 1 FROM question_tags t WHERE t.question_id = q.id AND t.tag = ?
		)`
		args = append(args, opts.Tag)
	}
	query += `
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions: %w", err)
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating question rows: %w", err)
	}
	// rows must be closed before the next query: the pool has one connection.
	rows.Close()

	if len(questions) == 0 {
		return questions, nil
	}

	ids := make([]string, len(questions))
	for i := range questions {
		ids[i] = questions[i].ID
	}
	tags, err := db.loadTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if t, ok := tags[questions[i].ID]; ok {
			questions[i].Tags = t
		}
	}
	return questions, nil
}

// loadTags fetches the ordered tags of every question in ids, maxBatch ids
// per query.
func (db *DB) loadTags(ctx context.Context, ids []string) (map[string][]string, error) {
	tags := make(map[string][]string, len(ids))
	for _, batch := range batches(ids, maxBatch) {
		if err := db.loadTagBatch(ctx, batch, tags); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

func (db *DB) loadTagBatch(ctx context.Context, ids []string, tags map[string][]string) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT question_id, tag FROM question_tags
		 WHERE question_id IN (`+placeholders(len(ids))+`)
		 ORDER BY question_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var questionID, tag string
		if err := rows.Scan(&questionID, &tag); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags[questionID] = append(tags[questionID], tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating tag rows: %w", err)
	}
	return nil
}

// DeleteQuestion removes a question. The foreign keys cascade to its tags,
// comments and every vote on the question or its comments, all inside the
// single DELETE statement.
func (db *DB) DeleteQuestion(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting question %s: %w", id, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("question", id)
	}
	return nil
}
