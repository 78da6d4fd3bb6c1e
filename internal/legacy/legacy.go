// Package legacy imports the flat-file data of the first StackIt release
// (data/questions.json) into a repository.
//
// FILE FORMAT:
// A single JSON array of questions, each embedding its author and comments:
//
//	[{"id": "...", "title": "...", "description": "...", "tags": ["go"],
//	  "authorId": "...", "author": {"name": "...", "email": "...", "image": "..."},
//	  "createdAt": "2024-01-01T10:00:00.000Z", "votes": 3,
//	  "comments": [{"id": "...", "content": "...", "authorId": "...",
//	                "author": {...}, "createdAt": "...", "votes": 1}]}]
//
// Ids, timestamps and vote totals are kept as they are. The flat file never
// recorded who voted, so imported totals become the baseline that later
// votes add to; they have no ledger rows behind them.
//
// Re-running an import is safe: questions and comments whose id already
// exists are skipped.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/service"
)

var (
	ErrEmptyFile = errors.New("legacy: data file is empty")
	ErrNotArray  = errors.New("legacy: data file does not contain a JSON array")
)

// Author is the embedded author object of the flat file.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	Author    *Author   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Votes     int       `json:"votes"`
}

type Question struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	AuthorID    string    `json:"authorId"`
	Author      Author    `json:"author"`
	CreatedAt   time.Time `json:"createdAt"`
	Votes       int       `json:"votes"`
	Comments    []Comment `json:"comments"`
}

// Parse decodes a flat file. Unlike the first release, which silently
// started empty, an empty or malformed file is an error.
func Parse(r io.Reader) ([]Question, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("legacy: reading data: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if data[0] != '[' {
		return nil, ErrNotArray
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("legacy: decoding data: %w", err)
	}
	for i, q := range questions {
		if q.ID == "" || q.AuthorID == "" {
			return nil, fmt.Errorf("legacy: question #%d has no id or authorId", i)
		}
		for j, c := range q.Comments {
			if c.ID == "" {
				return nil, fmt.Errorf("legacy: comment #%d of question %s has no id", j, q.ID)
			}
		}
	}
	return questions, nil
}

// LoadFile opens and parses the flat file at path. A missing file is an
// error.
func LoadFile(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("legacy: opening %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Store is the subset of the repository the importer writes to.
type Store interface {
	UpsertUser(ctx context.Context, user *model.User) error
	CreateQuestion(ctx context.Context, q *model.Question) error
	CreateComment(ctx context.Context, c *model.Comment) error
}

// Stats summarises an import run.
type Stats struct {
	Users            int
	Questions        int
	Comments         int
	SkippedQuestions int
	SkippedComments  int
}

// Importer writes parsed flat-file questions into a Store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import writes every question, its author and its comments. It stops at the
// first storage error; everything written before stays, and a re-run picks
// up where this one failed.
func (im *Importer) Import(ctx context.Context, questions []Question) (Stats, error) {
	var stats Stats
	seen := make(map[string]bool)

	upsert := func(id string, a *Author) error {
		if seen[id] {
			return nil
		}
		user := &model.User{ID: id}
		if a != nil {
			user.Name, user.Email, user.Image = a.Name, a.Email, a.Image
		}
		if err := im.store.UpsertUser(ctx, user); err != nil {
			return fmt.Errorf("legacy: upserting user %s: %w", id, err)
		}
		seen[id] = true
		stats.Users++
		return nil
	}

	for _, lq := range questions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := upsert(lq.AuthorID, &lq.Author); err != nil {
			return stats, err
		}

		q := &model.Question{
			ID:          lq.ID,
			Title:       lq.Title,
			Description: lq.Description,
			Tags:        service.NormalizeTags(lq.Tags),
			AuthorID:    lq.AuthorID,
			CreatedAt:   lq.CreatedAt,
			Votes:       lq.Votes,
		}
		switch err := im.store.CreateQuestion(ctx, q); {
		case err == nil:
			stats.Questions++
			im.logger.Info("imported question", slog.String("id", q.ID), slog.String("title", q.Title))
		case errors.Is(err, apperror.ErrConflict):
			stats.SkippedQuestions++
			im.logger.Debug("question already imported", slog.String("id", q.ID))
		default:
			return stats, fmt.Errorf("legacy: creating question %s: %w", q.ID, err)
		}

		for _, lc := range lq.Comments {
			// Older files have no comment authors; those fall back to the
			// question's author.
			authorID, author := lc.AuthorID, lc.Author
			if authorID == "" {
				authorID, author = lq.AuthorID, &lq.Author
			}
			if err := upsert(authorID, author); err != nil {
				return stats, err
			}

			c := &model.Comment{
				ID:         lc.ID,
				Content:    lc.Content,
				AuthorID:   authorID,
				QuestionID: lq.ID,
				CreatedAt:  lc.CreatedAt,
				Votes:      lc.Votes,
			}
			switch err := im.store.CreateComment(ctx, c); {
			case err == nil:
				stats.Comments++
			case errors.Is(err, apperror.ErrConflict):
				stats.SkippedComments++
			default:
				return stats, fmt.Errorf("legacy: creating comment %s: %w", c.ID, err)
			}
		}
	}

	im.logger.Info("legacy import finished",
		slog.Int("users", stats.Users),
		slog.Int("questions", stats.Questions),
		slog.Int("comments", stats.Comments),
		slog.Int("skipped_questions", stats.SkippedQuestions),
		slog.Int("skipped_comments", stats.SkippedComments),
	)
	return stats, nil
}
