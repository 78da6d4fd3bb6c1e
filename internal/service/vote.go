package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// maxVoteAttempts bounds how often a vote is re-planned after losing a
// compare-and-swap to a concurrent request by the same user.
const maxVoteAttempts = 3

// planVote decides the ledger transition and aggregate delta for a vote.
//
//	prior   desired   noop policy          retract policy
//	-----   -------   ------------------   ------------------
//	none    UP        UP,   +1             UP,   +1
//	UP      UP        UP,    0 (no-op)     none, -1
//	DOWN    UP        UP,   +2             UP,   +2
//
// DOWN mirrors UP with the signs flipped.
func planVote(prior, desired model.VoteType, policy VotePolicy) (next model.VoteType, delta int) {
	switch {
	case prior == "":
		return desired, desired.Delta()
	case prior == desired && policy == VotePolicyRetract:
		return "", -prior.Delta()
	case prior == desired:
		return prior, 0
	default:
		return desired, desired.Delta() - prior.Delta()
	}
}

// planRetract removes whatever vote exists.
func planRetract(prior model.VoteType) (next model.VoteType, delta int) {
	return "", -prior.Delta()
}

// VoteQuestion casts the caller's vote on a question and returns the updated
// question snapshot.
func (s *ForumService) VoteQuestion(ctx context.Context, caller *model.Identity, questionID, voteType string) (*model.QuestionDetail, error) {
	if err := requireIdentity(caller, "vote"); err != nil {
		return nil, err
	}
	desired, err := parseVoteType(voteType)
	if err != nil {
		return nil, err
	}
	if err := s.questionExists(ctx, questionID); err != nil {
		return nil, err
	}
	if _, err := s.upsertAuthor(ctx, caller); err != nil {
		return nil, err
	}

	err = s.applyVote(ctx, caller.ID, model.QuestionTarget(questionID), func(prior model.VoteType) (model.VoteType, int) {
		return planVote(prior, desired, s.policy)
	})
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, questionID, caller)
}

// RetractQuestionVote removes the caller's vote on a question. Having no vote
// is not an error.
func (s *ForumService) RetractQuestionVote(ctx context.Context, caller *model.Identity, questionID string) (*model.QuestionDetail, error) {
	if err := requireIdentity(caller, "vote"); err != nil {
		return nil, err
	}

	if err := s.applyVote(ctx, caller.ID, model.QuestionTarget(questionID), planRetract); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, questionID, caller)
}

// VoteComment casts the caller's vote on a comment of questionID and returns
// the comment with its new aggregate and the caller's vote.
func (s *ForumService) VoteComment(ctx context.Context, caller *model.Identity, questionID, commentID, voteType string) (*model.Comment, error) {
	if err := requireIdentity(caller, "vote"); err != nil {
		return nil, err
	}
	desired, err := parseVoteType(voteType)
	if err != nil {
		return nil, err
	}
	if _, err := s.commentOf(ctx, questionID, commentID); err != nil {
		return nil, err
	}
	if _, err := s.upsertAuthor(ctx, caller); err != nil {
		return nil, err
	}

	err = s.applyVote(ctx, caller.ID, model.CommentTarget(commentID), func(prior model.VoteType) (model.VoteType, int) {
		return planVote(prior, desired, s.policy)
	})
	if err != nil {
		return nil, err
	}
	return s.commentView(ctx, caller, commentID)
}

// RetractCommentVote removes the caller's vote on a comment.
func (s *ForumService) RetractCommentVote(ctx context.Context, caller *model.Identity, questionID, commentID string) (*model.Comment, error) {
	if err := requireIdentity(caller, "vote"); err != nil {
		return nil, err
	}
	if _, err := s.commentOf(ctx, questionID, commentID); err != nil {
		return nil, err
	}

	if err := s.applyVote(ctx, caller.ID, model.CommentTarget(commentID), planRetract); err != nil {
		return nil, err
	}
	return s.commentView(ctx, caller, commentID)
}

func parseVoteType(s string) (model.VoteType, error) {
	vt, ok := model.ParseVoteType(s)
	if !ok {
		return "", apperror.ValidationFailed("voteType", "voteType must be UP or DOWN")
	}
	return vt, nil
}

// applyVote reads the caller's current vote, plans the transition and hands
// it to the repository as a compare-and-swap. Losing the swap means another
// request of the same user changed the vote in between: the plan is rebuilt
// from a fresh read, never re-applied as is.
func (s *ForumService) applyVote(ctx context.Context, userID string, target model.Target, plan func(prior model.VoteType) (model.VoteType, int)) error {
	for attempt := 1; attempt <= maxVoteAttempts; attempt++ {
		current, err := retryRead(ctx, s, "loading vote", func() (*model.Vote, error) {
			return s.repo.GetVote(ctx, userID, target)
		})
		if err != nil {
			return err
		}

		var prior model.VoteType
		if current != nil {
			prior = current.Type
		}
		next, delta := plan(prior)
		if next == prior {
			s.logger.Debug("vote unchanged",
				slog.String("target", string(target.Type)),
				slog.String("id", target.ID),
				slog.String("user", userID),
			)
			return nil
		}

		votes, err := s.repo.ApplyVote(ctx, repository.VoteChange{
			UserID: userID,
			Target: target,
			Prior:  prior,
			Next:   next,
			Delta:  delta,
		})
		if err == nil {
			s.logger.Info("vote applied",
				slog.String("target", string(target.Type)),
				slog.String("id", target.ID),
				slog.String("user", userID),
				slog.String("prior", string(prior)),
				slog.String("next", string(next)),
				slog.Int("delta", delta),
				slog.Int("votes", votes),
			)
			return nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return s.storageError("applying vote", err)
		}

		s.logger.Debug("vote changed concurrently, re-planning",
			slog.String("id", target.ID),
			slog.Int("attempt", attempt),
		)
	}
	return apperror.Conflict("vote", target.ID)
}

// commentView loads a comment annotated with the caller's own vote.
func (s *ForumService) commentView(ctx context.Context, caller *model.Identity, commentID string) (*model.Comment, error) {
	return retryRead(ctx, s, "loading comment", func() (*model.Comment, error) {
		c, err := s.repo.GetComment(ctx, commentID)
		if err != nil {
			return nil, err
		}
		v, err := s.repo.GetVote(ctx, caller.ID, model.CommentTarget(commentID))
		if err != nil {
			return nil, err
		}
		if v != nil {
			c.UserVote = v.Type
		}
		return c, nil
	})
}
