// Package repository declares the persistence contract the forum service
// consumes. Implementations live in sub-packages (sqlite, postgres) and must
// all pass the shared contract suite in repotest.
//
// CONTRACT HIGHLIGHTS:
//   - Get* methods return apperror.NotFound when the row does not exist.
//   - DeleteQuestion removes the question, its comments and every vote that
//     points at any of them, atomically.
//   - CreateComment fails with apperror.NotFound when the parent question is
//     gone, even if it was deleted a moment before the insert.
//   - Vote aggregates are only changed with `votes = votes + delta` in the
//     storage engine, never by writing a value computed in Go.
package repository

import (
	"context"

	"github.com/sakif/stackit/internal/model"
)

// ListOptions narrows ListQuestions. The zero value lists everything.
type ListOptions struct {
	Tag    string // only questions carrying this tag
	Limit  int    // 0 means no limit
	Offset int
}

type UserRepository interface {
	// UpsertUser inserts the user or refreshes name/email/image of an
	// existing row. CreatedAt of an existing row is preserved and copied
	// back into user.
	UpsertUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type QuestionRepository interface {
	// CreateQuestion assigns ID and CreatedAt when they are empty. A
	// question whose ID already exists yields apperror.Conflict.
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	// ListQuestions orders by created_at DESC, id DESC.
	ListQuestions(ctx context.Context, opts ListOptions) ([]model.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	// ListComments orders by created_at ASC, id ASC.
	ListComments(ctx context.Context, questionID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

// VoteChange is a compare-and-swap on one ledger row plus the aggregate
// delta that goes with it. Prior is the vote type the caller observed
// ("" = no row); Next is the desired type ("" = delete the row).
//
// ApplyVote fails with apperror.Conflict when the ledger no longer holds
// Prior, in which case nothing was written and the caller must re-read.
type VoteChange struct {
	UserID string
	Target model.Target
	Prior  model.VoteType
	Next   model.VoteType
	Delta  int
}

type VoteRepository interface {
	// GetVote returns (nil, nil) when the user has not voted on target.
	GetVote(ctx context.Context, userID string, target model.Target) (*model.Vote, error)
	// ListVotesForUser returns the user's votes on the given targets of one
	// type, keyed by target id. Targets without a vote are absent.
	ListVotesForUser(ctx context.Context, userID string, targetType model.TargetType, targetIDs []string) (map[string]model.VoteType, error)
	// AdjustVoteCount atomically adds delta to the target's aggregate and
	// returns the new value.
	AdjustVoteCount(ctx context.Context, target model.Target, delta int) (int, error)
	// ApplyVote performs the ledger CAS and the aggregate adjustment in one
	// transaction and returns the new aggregate.
	ApplyVote(ctx context.Context, change VoteChange) (int, error)
}

// ForumRepository is everything the forum service needs.
type ForumRepository interface {
	UserRepository
	QuestionRepository
	CommentRepository
	VoteRepository
}

// Store is a ForumRepository with a lifecycle, owned by the server.
type Store interface {
	ForumRepository
	Ping(ctx context.Context) error
	Close() error
}
