// Package service contains the business logic of the forum.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces ownership, aggregates votes
//	Repository (data layer)  → reads/writes the persistence engine
//
// ForumService owns the consistency model of questions, comments and votes.
// It holds no state between requests: the repository is the only shared
// mutable resource, so any number of requests may run through it at once.
//
// ERROR CONTRACT:
// Every error returned here is an *apperror.AppError. Validation and
// authorization are checked before any write. Unknown repository failures
// become apperror.Storage; idempotent reads are retried once before that.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// Validation limits.
const (
	MaxTitleLength       = 300
	MaxDescriptionLength = 30000
	MaxCommentLength     = 10000
	MaxTags              = 10
	MaxTagLength         = 50
)

// VotePolicy decides what a repeated vote in the same direction does.
type VotePolicy string

const (
	// VotePolicyNoop treats a repeated vote as an idempotent re-assertion.
	VotePolicyNoop VotePolicy = "noop"
	// VotePolicyRetract treats a repeated vote as "take my vote back".
	VotePolicyRetract VotePolicy = "retract"
)

// ParseVotePolicy accepts "noop" and "retract"; "" selects VotePolicyNoop.
func ParseVotePolicy(s string) (VotePolicy, error) {
	switch p := VotePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return VotePolicyNoop, nil
	case VotePolicyNoop, VotePolicyRetract:
		return p, nil
	default:
		return "", fmt.Errorf("unknown vote repeat policy %q (want noop or retract)", s)
	}
}

// ForumService implements question, comment and vote operations.
type ForumService struct {
	repo   repository.ForumRepository
	policy VotePolicy
	logger *slog.Logger
}

// NewForumService wires the service. An empty policy selects VotePolicyNoop.
func NewForumService(repo repository.ForumRepository, policy VotePolicy, logger *slog.Logger) *ForumService {
	if policy == "" {
		policy = VotePolicyNoop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ForumService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// Policy reports the configured repeat-vote policy.
func (s *ForumService) Policy() VotePolicy {
	return s.policy
}

// requireIdentity is the first check of every mutating operation.
func requireIdentity(caller *model.Identity, action string) error {
	if caller == nil || caller.ID == "" {
		return apperror.Unauthorized("sign in to " + action)
	}
	return nil
}

// upsertAuthor refreshes the caller's User row. It runs on every content
// submission so names and avatars stay current and the row referenced by
// author_id / user_id is guaranteed to exist.
func (s *ForumService) upsertAuthor(ctx context.Context, caller *model.Identity) (*model.User, error) {
	user := caller.User()
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, s.storageError("saving user profile", err)
	}
	return user, nil
}

// storageError passes domain errors through and classifies everything else
// as a storage failure, logging the driver error that the caller never sees.
func (s *ForumService) storageError(op string, err error) error {
	if apperror.IsDomain(err) {
		return err
	}
	s.logger.Error("storage failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return apperror.Storage(op, err)
}

// retryRead runs an idempotent read and retries it once when it fails with
// anything but a domain error. Writes never go through here.
func retryRead[T any](ctx context.Context, s *ForumService, op string, read func() (T, error)) (T, error) {
	v, err := read()
	if err == nil || apperror.IsDomain(err) {
		return v, err
	}
	if ctx.Err() != nil {
		var zero T
		return zero, s.storageError(op, err)
	}

	s.logger.Warn("read failed, retrying once",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	v, err = read()
	if err != nil {
		var zero T
		return zero, s.storageError(op, err)
	}
	return v, nil
}

// snapshot loads the canonical view of a question: the question, its
// comments oldest first and, for an authenticated caller, their own votes.
// Every comment mutation returns this so the client's view is consistent.
func (s *ForumService) snapshot(ctx context.Context, questionID string, caller *model.Identity) (*model.QuestionDetail, error) {
	return retryRead(ctx, s, "loading question", func() (*model.QuestionDetail, error) {
		q, err := s.repo.GetQuestion(ctx, questionID)
		if err != nil {
			return nil, err
		}
		comments, err := s.repo.ListComments(ctx, questionID)
		if err != nil {
			return nil, err
		}

		detail := &model.QuestionDetail{Question: *q, Comments: comments}
		detail.CommentCount = len(comments)

		if caller == nil {
			return detail, nil
		}

		qv, err := s.repo.ListVotesForUser(ctx, caller.ID, model.TargetQuestion, []string{q.ID})
		if err != nil {
			return nil, err
		}
		detail.UserVote = qv[q.ID]

		if len(comments) > 0 {
			ids := make([]string, len(comments))
			for i := range comments {
				ids[i] = comments[i].ID
			}
			cv, err := s.repo.ListVotesForUser(ctx, caller.ID, model.TargetComment, ids)
			if err != nil {
				return nil, err
			}
			for i := range detail.Comments {
				detail.Comments[i].UserVote = cv[detail.Comments[i].ID]
			}
		}
		return detail, nil
	})
}

// NormalizeTags trims every tag, drops blanks and collapses duplicates while
// keeping the position of the first occurrence.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
