package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

// CreateComment adds a comment to a question and returns the updated
// question snapshot.
//
// The repository checks the parent inside the insert's transaction, so a
// question deleted a moment earlier yields NotFound instead of an orphan.
func (s *ForumService) CreateComment(ctx context.Context, caller *model.Identity, questionID, content string) (*model.QuestionDetail, error) {
	if err := requireIdentity(caller, "comment"); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	author, err := s.upsertAuthor(ctx, caller)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		Content:    content,
		AuthorID:   author.ID,
		QuestionID: questionID,
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, s.storageError("creating comment", err)
	}

	s.logger.Info("comment created",
		slog.String("id", c.ID),
		slog.String("question", questionID),
		slog.String("author", author.ID),
	)
	return s.snapshot(ctx, questionID, caller)
}

// DeleteComment removes the caller's own comment and returns the updated
// question snapshot. Owning the question grants no rights over other
// people's comments on it.
func (s *ForumService) DeleteComment(ctx context.Context, caller *model.Identity, questionID, commentID string) (*model.QuestionDetail, error) {
	if err := requireIdentity(caller, "delete a comment"); err != nil {
		return nil, err
	}

	c, err := s.commentOf(ctx, questionID, commentID)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != caller.ID {
		return nil, apperror.Forbidden("only the author can delete this comment")
	}

	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return nil, s.storageError("deleting comment", err)
	}

	s.logger.Info("comment deleted",
		slog.String("id", commentID),
		slog.String("question", questionID),
	)
	return s.snapshot(ctx, questionID, caller)
}

// questionExists reports NotFound for a missing question.
func (s *ForumService) questionExists(ctx context.Context, questionID string) error {
	_, err := retryRead(ctx, s, "loading question", func() (*model.Question, error) {
		return s.repo.GetQuestion(ctx, questionID)
	})
	return err
}

// commentOf loads a comment and checks it hangs under questionID. A missing
// question, a missing comment and a comment of another question are all
// NotFound.
func (s *ForumService) commentOf(ctx context.Context, questionID, commentID string) (*model.Comment, error) {
	return retryRead(ctx, s, "loading comment", func() (*model.Comment, error) {
		if _, err := s.repo.GetQuestion(ctx, questionID); err != nil {
			return nil, err
		}
		c, err := s.repo.GetComment(ctx, commentID)
		if err != nil {
			return nil, err
		}
		if c.QuestionID != questionID {
			return nil, apperror.NotFound("comment", commentID)
		}
		return c, nil
	})
}
