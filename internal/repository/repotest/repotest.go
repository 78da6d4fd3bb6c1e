// Package repotest is the contract suite every repository.Store
// implementation must pass. Engine packages call Run from their own tests:
//
//	func TestContract(t *testing.T) {
//		repotest.Run(t, func(t *testing.T) repository.Store { return newTestDB(t) })
//	}
//
// newStore must return an empty store; Run calls it once per subtest.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// Run executes the whole contract against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"UpsertUserCreatesAndRefreshes", testUpsertUser},
		{"GetUserNotFound", testGetUserNotFound},
		{"CreateAndGetQuestion", testCreateAndGetQuestion},
		{"CreateQuestionDuplicateID", testCreateQuestionDuplicateID},
		{"GetQuestionNotFound", testGetQuestionNotFound},
		{"ListQuestionsNewestFirst", testListQuestionsOrder},
		{"ListQuestionsTagLimitOffset", testListQuestionsFilters},
		{"CommentsOldestFirst", testCommentsOrder},
		{"CreateCommentMissingQuestion", testCreateCommentMissingQuestion},
		{"DeleteCommentCascadesVotes", testDeleteComment},
		{"DeleteQuestionCascades", testDeleteQuestionCascades},
		{"DeleteMissing", testDeleteMissing},
		{"ApplyVoteLifecycle", testApplyVoteLifecycle},
		{"ApplyVoteStalePriorConflicts", testApplyVoteConflict},
		{"ApplyVoteMissingTarget", testApplyVoteMissingTarget},
		{"CommentVotesAreIndependent", testCommentVotes},
		{"ListVotesForUser", testListVotesForUser},
		{"AdjustVoteCountIsAtomic", testAdjustVoteCountConcurrent},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// =========================================================================
// HELPERS
// =========================================================================

func seedUser(t *testing.T, s repository.Store, id string) *model.User {
	t.Helper()
	u := &model.User{ID: id, Name: "User " + id, Email: id + "@example.com", Image: "https://img.example/" + id}
	require.NoError(t, s.UpsertUser(context.Background(), u))
	return u
}

func seedQuestion(t *testing.T, s repository.Store, authorID string, createdAt time.Time, tags ...string) *model.Question {
	t.Helper()
	q := &model.Question{
		Title:       "How do I use channels?",
		Description: "Looking for an explanation of buffered channels.",
		Tags:        tags,
		AuthorID:    authorID,
		CreatedAt:   createdAt,
	}
	require.NoError(t, s.CreateQuestion(context.Background(), q))
	return q
}

func seedComment(t *testing.T, s repository.Store, questionID, authorID string, createdAt time.Time) *model.Comment {
	t.Helper()
	c := &model.Comment{
		Content:    "Use make(chan T, n).",
		AuthorID:   authorID,
		QuestionID: questionID,
		CreatedAt:  createdAt,
	}
	require.NoError(t, s.CreateComment(context.Background(), c))
	return c
}

func vote(t *testing.T, s repository.Store, change repository.VoteChange) int {
	t.Helper()
	n, err := s.ApplyVote(context.Background(), change)
	require.NoError(t, err)
	return n
}

// base is a fixed, second-aligned instant so every engine round-trips it
// exactly.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// =========================================================================
// USER TESTS
// =========================================================================

func testUpsertUser(t *testing.T, s repository.Store) {
	ctx := context.Background()
	first := seedUser(t, s, "google-1")
	assert.False(t, first.CreatedAt.IsZero())

	again := &model.User{ID: "google-1", Name: "Renamed"}
	require.NoError(t, s.UpsertUser(ctx, again))

	assert.Equal(t, "Renamed", again.Name)
	assert.Equal(t, first.Email, again.Email, "blank email must not erase the stored one")
	assert.Equal(t, first.Image, again.Image)
	assert.True(t, first.CreatedAt.Equal(again.CreatedAt), "CreatedAt must be preserved")

	got, err := s.GetUser(ctx, "google-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func testGetUserNotFound(t *testing.T, s repository.Store) {
	_, err := s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// QUESTION TESTS
// =========================================================================

func testCreateAndGetQuestion(t *testing.T, s repository.Store) {
	ctx := context.Background()
	author := seedUser(t, s, "alice")
	q := seedQuestion(t, s, author.ID, time.Time{}, "go", "concurrency", "channels")

	assert.NotEmpty(t, q.ID)
	assert.False(t, q.CreatedAt.IsZero())

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Title, got.Title)
	assert.Equal(t, q.Description, got.Description)
	assert.Equal(t, []string{"go", "concurrency", "channels"}, got.Tags, "tag order is preserved")
	assert.Equal(t, author.ID, got.Author.ID)
	assert.Equal(t, author.Name, got.Author.Name)
	assert.Equal(t, author.Image, got.Author.Image)
	assert.Equal(t, 0, got.Votes)
	assert.Equal(t, 0, got.CommentCount)

	seedComment(t, s, q.ID, author.ID, time.Time{})
	got, err = s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentCount)
}

func testCreateQuestionDuplicateID(t *testing.T, s repository.Store) {
	author := seedUser(t, s, "alice")
	q := seedQuestion(t, s, author.ID, base)

	dup := &model.Question{ID: q.ID, Title: "t", Description: "d", AuthorID: author.ID}
	err := s.CreateQuestion(context.Background(), dup)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func testGetQuestionNotFound(t *testing.T, s repository.Store) {
	_, err := s.GetQuestion(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testListQuestionsOrder(t *testing.T, s repository.Store) {
	author := seedUser(t, s, "alice")
	older := seedQuestion(t, s, author.ID, base)
	newer := seedQuestion(t, s, author.ID, base.Add(time.Hour))
	// Same timestamp as newer: the id breaks the tie, descending.
	tieA := &model.Question{ID: "zzzz-tie", Title: "t", Description: "d", AuthorID: author.ID, CreatedAt: base.Add(time.Hour)}
	require.NoError(t, s.CreateQuestion(context.Background(), tieA))

	list, err := s.ListQuestions(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)

	want := []string{tieA.ID, newer.ID, older.ID}
	if newer.ID > tieA.ID {
		want = []string{newer.ID, tieA.ID, older.ID}
	}
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Equal(t, want, got)
}

func testListQuestionsFilters(t *testing.T, s repository.Store) {
	ctx := context.Background()
	author := seedUser(t, s, "alice")
	q1 := seedQuestion(t, s, author.ID, base, "go")
	q2 := seedQuestion(t, s, author.ID, base.Add(time.Minute), "rust")
	q3 := seedQuestion(t, s, author.ID, base.Add(2*time.Minute), "go", "sql")

	byTag, err := s.ListQuestions(ctx, repository.ListOptions{Tag: "go"})
	require.NoError(t, err)
	require.Len(t, byTag, 2)
	assert.Equal(t, q3.ID, byTag[0].ID)
	assert.Equal(t, q1.ID, byTag[1].ID)
	assert.Equal(t, []string{"go", "sql"}, byTag[0].Tags)

	page, err := s.ListQuestions(ctx, repository.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, q2.ID, page[0].ID)

	tail, err := s.ListQuestions(ctx, repository.ListOptions{Offset: 2})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, q1.ID, tail[0].ID)

	none, err := s.ListQuestions(ctx, repository.ListOptions{Tag: "cobol"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func testCommentsOrder(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	q := seedQuestion(t, s, alice.ID, base)

	late := seedComment(t, s, q.ID, bob.ID, base.Add(2*time.Minute))
	early := seedComment(t, s, q.ID, alice.ID, base.Add(time.Minute))

	list, err := s.ListComments(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
	assert.Equal(t, bob.Name, list[1].Author.Name)
	assert.Equal(t, q.ID, list[1].QuestionID)

	got, err := s.GetComment(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, late.Content, got.Content)

	empty, err := s.ListComments(ctx, "no-such-question")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testCreateCommentMissingQuestion(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q := seedQuestion(t, s, alice.ID, base)
	require.NoError(t, s.DeleteQuestion(ctx, q.ID))

	c := &model.Comment{Content: "late reply", AuthorID: alice.ID, QuestionID: q.ID}
	err := s.CreateComment(ctx, c)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = s.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "no orphan comment may exist")
}

func testDeleteComment(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q := seedQuestion(t, s, alice.ID, base)
	c := seedComment(t, s, q.ID, alice.ID, base)
	target := model.CommentTarget(c.ID)
	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: target, Next: model.VoteUp, Delta: 1})

	require.NoError(t, s.DeleteComment(ctx, c.ID))

	_, err := s.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	v, err := s.GetVote(ctx, alice.ID, target)
	require.NoError(t, err)
	assert.Nil(t, v)

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CommentCount)
}

func testDeleteQuestionCascades(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	q := seedQuestion(t, s, alice.ID, base, "go")
	c1 := seedComment(t, s, q.ID, bob.ID, base)
	c2 := seedComment(t, s, q.ID, alice.ID, base.Add(time.Second))

	vote(t, s, repository.VoteChange{UserID: bob.ID, Target: model.QuestionTarget(q.ID), Next: model.VoteUp, Delta: 1})
	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: model.CommentTarget(c1.ID), Next: model.VoteDown, Delta: -1})
	vote(t, s, repository.VoteChange{UserID: bob.ID, Target: model.CommentTarget(c2.ID), Next: model.VoteUp, Delta: 1})

	require.NoError(t, s.DeleteQuestion(ctx, q.ID))

	_, err := s.GetQuestion(ctx, q.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	for _, id := range []string{c1.ID, c2.ID} {
		_, err := s.GetComment(ctx, id)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	}

	qv, err := s.ListVotesForUser(ctx, bob.ID, model.TargetQuestion, []string{q.ID})
	require.NoError(t, err)
	assert.Empty(t, qv)
	cv, err := s.ListVotesForUser(ctx, alice.ID, model.TargetComment, []string{c1.ID})
	require.NoError(t, err)
	assert.Empty(t, cv)
	cv, err = s.ListVotesForUser(ctx, bob.ID, model.TargetComment, []string{c2.ID})
	require.NoError(t, err)
	assert.Empty(t, cv)

	list, err := s.ListQuestions(ctx, repository.ListOptions{Tag: "go"})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Users survive.
	_, err = s.GetUser(ctx, bob.ID)
	assert.NoError(t, err)
}

func testDeleteMissing(t *testing.T, s repository.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.DeleteQuestion(ctx, "missing"), apperror.ErrNotFound)
	assert.ErrorIs(t, s.DeleteComment(ctx, "missing"), apperror.ErrNotFound)
}

// =========================================================================
// VOTE TESTS
// =========================================================================

func testApplyVoteLifecycle(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q := seedQuestion(t, s, alice.ID, base)
	target := model.QuestionTarget(q.ID)

	n := vote(t, s, repository.VoteChange{UserID: alice.ID, Target: target, Next: model.VoteUp, Delta: 1})
	assert.Equal(t, 1, n)

	v, err := s.GetVote(ctx, alice.ID, target)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, model.VoteUp, v.Type)

	n = vote(t, s, repository.VoteChange{UserID: alice.ID, Target: target, Prior: model.VoteUp, Next: model.VoteDown, Delta: -2})
	assert.Equal(t, -1, n)

	n = vote(t, s, repository.VoteChange{UserID: alice.ID, Target: target, Prior: model.VoteDown, Delta: 1})
	assert.Equal(t, 0, n)

	v, err = s.GetVote(ctx, alice.ID, target)
	require.NoError(t, err)
	assert.Nil(t, v)

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Votes)
}

func testApplyVoteConflict(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q := seedQuestion(t, s, alice.ID, base)
	target := model.QuestionTarget(q.ID)
	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: target, Next: model.VoteUp, Delta: 1})

	stale := []repository.VoteChange{
		{UserID: alice.ID, Target: target, Next: model.VoteUp, Delta: 1},
		{UserID: alice.ID, Target: target, Prior: model.VoteDown, Next: model.VoteUp, Delta: 2},
		{UserID: alice.ID, Target: target, Prior: model.VoteDown, Delta: 1},
	}
	for _, change := range stale {
		_, err := s.ApplyVote(ctx, change)
		assert.ErrorIs(t, err, apperror.ErrConflict, "change %+v", change)
	}

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Votes, "rejected changes must not touch the aggregate")
}

func testApplyVoteMissingTarget(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	_, err := s.ApplyVote(ctx, repository.VoteChange{UserID: alice.ID, Target: model.QuestionTarget("gone"), Next: model.VoteUp, Delta: 1})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.ApplyVote(ctx, repository.VoteChange{UserID: alice.ID, Target: model.CommentTarget("gone"), Next: model.VoteUp, Delta: 1})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	v, err := s.GetVote(ctx, alice.ID, model.QuestionTarget("gone"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func testCommentVotes(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	q := seedQuestion(t, s, alice.ID, base)
	c := seedComment(t, s, q.ID, bob.ID, base)

	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: model.CommentTarget(c.ID), Next: model.VoteUp, Delta: 1})
	n := vote(t, s, repository.VoteChange{UserID: bob.ID, Target: model.CommentTarget(c.ID), Next: model.VoteUp, Delta: 1})
	assert.Equal(t, 2, n)

	gotC, err := s.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotC.Votes)

	gotQ, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotQ.Votes, "comment votes never touch the question aggregate")

	qv, err := s.GetVote(ctx, alice.ID, model.QuestionTarget(q.ID))
	require.NoError(t, err)
	assert.Nil(t, qv)
}

func testListVotesForUser(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q1 := seedQuestion(t, s, alice.ID, base)
	q2 := seedQuestion(t, s, alice.ID, base.Add(time.Minute))
	q3 := seedQuestion(t, s, alice.ID, base.Add(2*time.Minute))

	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: model.QuestionTarget(q1.ID), Next: model.VoteUp, Delta: 1})
	vote(t, s, repository.VoteChange{UserID: alice.ID, Target: model.QuestionTarget(q3.ID), Next: model.VoteDown, Delta: -1})

	votes, err := s.ListVotesForUser(ctx, alice.ID, model.TargetQuestion, []string{q1.ID, q2.ID, q3.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.VoteType{q1.ID: model.VoteUp, q3.ID: model.VoteDown}, votes)

	empty, err := s.ListVotesForUser(ctx, alice.ID, model.TargetQuestion, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAdjustVoteCountConcurrent(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	q := seedQuestion(t, s, alice.ID, base)
	target := model.QuestionTarget(q.ID)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustVoteCount(ctx, target, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AdjustVoteCount() error = %v", err)
	}

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.Votes)

	_, err = s.AdjustVoteCount(ctx, model.CommentTarget("missing"), 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testPing(t *testing.T, s repository.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Ping(ctx))
}
