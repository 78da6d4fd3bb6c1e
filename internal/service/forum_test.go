package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
	"github.com/sakif/stackit/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

var (
	alice = &model.Identity{ID: "google-alice", Name: "Alice", Email: "alice@example.com", Image: "https://img.example/alice"}
	bob   = &model.Identity{ID: "google-bob", Name: "Bob", Email: "bob@example.com", Image: "https://img.example/bob"}
	carol = &model.Identity{ID: "google-carol", Name: "Carol"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore returns an empty in-memory SQLite store.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, policy VotePolicy) (*ForumService, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	return NewForumService(db, policy, quietLogger()), db
}

func mustAsk(t *testing.T, svc *ForumService, caller *model.Identity, tags ...string) *model.Question {
	t.Helper()
	q, err := svc.CreateQuestion(context.Background(), caller, CreateQuestionInput{
		Title:       "Why does X happen?",
		Description: "Details...",
		Tags:        tags,
	})
	require.NoError(t, err)
	return q
}

func mustComment(t *testing.T, svc *ForumService, caller *model.Identity, questionID, content string) model.Comment {
	t.Helper()
	detail, err := svc.CreateComment(context.Background(), caller, questionID, content)
	require.NoError(t, err)
	require.NotEmpty(t, detail.Comments)
	return detail.Comments[len(detail.Comments)-1]
}

// flakyRepo wraps a real repository and injects failures. Counters are
// decremented on every injected failure; calls counts every invocation.
type flakyRepo struct {
	repository.ForumRepository

	getQuestionFailures  int
	listQuestionFailures int
	applyVoteConflicts   int
	createQuestionErr    error

	calls map[string]int
}

var errDiskIO = errors.New("disk I/O error")

func newFlakyRepo(inner repository.ForumRepository) *flakyRepo {
	return &flakyRepo{ForumRepository: inner, calls: make(map[string]int)}
}

func (f *flakyRepo) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	f.calls["GetQuestion"]++
	if f.getQuestionFailures > 0 {
		f.getQuestionFailures--
		return nil, errDiskIO
	}
	return f.ForumRepository.GetQuestion(ctx, id)
}

func (f *flakyRepo) ListQuestions(ctx context.Context, opts repository.ListOptions) ([]model.Question, error) {
	f.calls["ListQuestions"]++
	if f.listQuestionFailures > 0 {
		f.listQuestionFailures--
		return nil, errDiskIO
	}
	return f.ForumRepository.ListQuestions(ctx, opts)
}

func (f *flakyRepo) CreateQuestion(ctx context.Context, q *model.Question) error {
	f.calls["CreateQuestion"]++
	if f.createQuestionErr != nil {
		return f.createQuestionErr
	}
	return f.ForumRepository.CreateQuestion(ctx, q)
}

func (f *flakyRepo) ApplyVote(ctx context.Context, change repository.VoteChange) (int, error) {
	f.calls["ApplyVote"]++
	if f.applyVoteConflicts > 0 {
		f.applyVoteConflicts--
		return 0, apperror.Conflict("vote", change.Target.ID)
	}
	return f.ForumRepository.ApplyVote(ctx, change)
}

// =========================================================================
// SHARED BEHAVIOUR TESTS
// =========================================================================

func TestParseVotePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    VotePolicy
		wantErr bool
	}{
		{"", VotePolicyNoop, false},
		{"noop", VotePolicyNoop, false},
		{" Retract ", VotePolicyRetract, false},
		{"toggle", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVotePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseVotePolicy(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewForumService_DefaultPolicy(t *testing.T) {
	svc := NewForumService(newTestStore(t), "", nil)
	assert.Equal(t, VotePolicyNoop, svc.Policy())
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"duplicates keep first position", []string{"a", "b", "a"}, []string{"a", "b"}},
		{"trimmed before comparing", []string{" go", "go ", "sql"}, []string{"go", "sql"}},
		{"blank tags dropped", []string{"", "  ", "x"}, []string{"x"}},
		{"case sensitive", []string{"Go", "go"}, []string{"Go", "go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.in))
		})
	}
}

func TestRetryRead_DomainErrorsAreNotRetried(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	calls := 0

	_, err := retryRead(context.Background(), svc, "loading", func() (int, error) {
		calls++
		return 0, apperror.NotFound("question", "q")
	})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryRead_CancelledContextIsNotRetried(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := retryRead(ctx, svc, "loading", func() (int, error) {
		calls++
		return 0, context.Canceled
	})

	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
