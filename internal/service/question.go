package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// CreateQuestionInput is what a caller submits to ask a question.
type CreateQuestionInput struct {
	Title       string
	Description string
	Tags        []string
}

// ListQuestionsInput narrows ListQuestions; the zero value lists everything.
type ListQuestionsInput struct {
	Tag    string
	Limit  int
	Offset int
}

// CreateQuestion validates the input, refreshes the caller's profile and
// stores a new question with zero votes.
//
// Tags are normalized before storage: {"a", "b", "a"} is stored as {"a", "b"}.
func (s *ForumService) CreateQuestion(ctx context.Context, caller *model.Identity, in CreateQuestionInput) (*model.Question, error) {
	if err := requireIdentity(caller, "ask a question"); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	tags := NormalizeTags(in.Tags)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "description is required")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(tags) > MaxTags {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("a question can have at most %d tags", MaxTags))
	}
	for _, tag := range tags {
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tag %q must be %d characters or less", tag, MaxTagLength))
		}
	}

	author, err := s.upsertAuthor(ctx, caller)
	if err != nil {
		return nil, err
	}

	q := &model.Question{
		Title:       title,
		Description: description,
		Tags:        tags,
		AuthorID:    author.ID,
		Author:      author.Author(),
	}
	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, s.storageError("creating question", err)
	}

	s.logger.Info("question created",
		slog.String("id", q.ID),
		slog.String("author", q.AuthorID),
		slog.Int("tags", len(q.Tags)),
	)
	return q, nil
}

// GetQuestion returns the question with its comments. caller may be nil;
// when it is not, the question and each comment carry the caller's vote.
func (s *ForumService) GetQuestion(ctx context.Context, caller *model.Identity, id string) (*model.QuestionDetail, error) {
	return s.snapshot(ctx, id, caller)
}

// ListQuestions returns questions newest first. Limit 0 means no limit: the
// server never forces a page size on clients.
func (s *ForumService) ListQuestions(ctx context.Context, caller *model.Identity, in ListQuestionsInput) ([]model.Question, error) {
	if in.Limit < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must not be negative")
	}
	if in.Offset < 0 {
		return nil, apperror.ValidationFailed("offset", "offset must not be negative")
	}
	opts := repository.ListOptions{
		Tag:    strings.TrimSpace(in.Tag),
		Limit:  in.Limit,
		Offset: in.Offset,
	}

	return retryRead(ctx, s, "listing questions", func() ([]model.Question, error) {
		questions, err := s.repo.ListQuestions(ctx, opts)
		if err != nil {
			return nil, err
		}
		if caller == nil || len(questions) == 0 {
			return questions, nil
		}

		ids := make([]string, len(questions))
		for i := range questions {
			ids[i] = questions[i].ID
		}
		votes, err := s.repo.ListVotesForUser(ctx, caller.ID, model.TargetQuestion, ids)
		if err != nil {
			return nil, err
		}
		for i := range questions {
			questions[i].UserVote = votes[questions[i].ID]
		}
		return questions, nil
	})
}

// DeleteQuestion removes a question together with its comments and votes.
// Only the author may delete it.
func (s *ForumService) DeleteQuestion(ctx context.Context, caller *model.Identity, id string) error {
	if err := requireIdentity(caller, "delete a question"); err != nil {
		return err
	}

	q, err := retryRead(ctx, s, "loading question", func() (*model.Question, error) {
		return s.repo.GetQuestion(ctx, id)
	})
	if err != nil {
		return err
	}
	if q.AuthorID != caller.ID {
		return apperror.Forbidden("only the author can delete this question")
	}

	if err := s.repo.DeleteQuestion(ctx, id); err != nil {
		return s.storageError("deleting question", err)
	}

	s.logger.Info("question deleted",
		slog.String("id", id),
		slog.String("author", caller.ID),
	)
	return nil
}
