package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateQuestion_DedupsTagsAndStartsAtZero(t *testing.T) {
	svc, db := newTestService(t, VotePolicyNoop)
	ctx := context.Background()

	q, err := svc.CreateQuestion(ctx, alice, CreateQuestionInput{
		Title:       "  Why does X happen?  ",
		Description: "Details...",
		Tags:        []string{"a", "b", "a"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "Why does X happen?", q.Title)
	assert.Equal(t, []string{"a", "b"}, q.Tags)
	assert.Equal(t, 0, q.Votes)
	assert.False(t, q.CreatedAt.IsZero())
	assert.Equal(t, model.Author{ID: alice.ID, Name: alice.Name, Image: alice.Image}, q.Author)

	stored, err := db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored.Tags)
	assert.Equal(t, 0, stored.Votes)
	assert.Equal(t, alice.ID, stored.AuthorID)

	user, err := db.GetUser(ctx, alice.ID)
	require.NoError(t, err, "creating content upserts the author")
	assert.Equal(t, alice.Email, user.Email)
}

func TestCreateQuestion_AuthorMatchesCallerForAnyValidInput(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)

	inputs := []CreateQuestionInput{
		{Title: "t", Description: "d"},
		{Title: "Ünïcödé ✓", Description: "# markdown\n\n```go\nfmt.Println()\n```", Tags: []string{"go"}},
		{Title: strings.Repeat("x", MaxTitleLength), Description: "d", Tags: []string{}},
	}
	for _, in := range inputs {
		q, err := svc.CreateQuestion(context.Background(), bob, in)
		require.NoError(t, err, "input %+v", in)
		assert.Equal(t, 0, q.Votes)
		assert.Equal(t, bob.ID, q.Author.ID)
		assert.Equal(t, bob.Name, q.Author.Name)
	}
}

func TestCreateQuestion_Validation(t *testing.T) {
	tooManyTags := make([]string, MaxTags+1)
	for i := range tooManyTags {
		tooManyTags[i] = strings.Repeat("t", i+1)
	}

	tests := []struct {
		name      string
		in        CreateQuestionInput
		wantField string
	}{
		{"empty title", CreateQuestionInput{Title: "", Description: "d"}, "title"},
		{"whitespace title", CreateQuestionInput{Title: " \t\n", Description: "d"}, "title"},
		{"title too long", CreateQuestionInput{Title: strings.Repeat("x", MaxTitleLength+1), Description: "d"}, "title"},
		{"empty description", CreateQuestionInput{Title: "t", Description: "   "}, "description"},
		{"too many tags", CreateQuestionInput{Title: "t", Description: "d", Tags: tooManyTags}, "tags"},
		{"tag too long", CreateQuestionInput{Title: "t", Description: "d", Tags: []string{strings.Repeat("g", MaxTagLength+1)}}, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newTestService(t, VotePolicyNoop)

			_, err := svc.CreateQuestion(context.Background(), alice, tt.in)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)

			// Validation happens before any write: not even the user row.
			_, err = db.GetUser(context.Background(), alice.ID)
			assert.ErrorIs(t, err, apperror.ErrNotFound)
		})
	}
}

func TestCreateQuestion_Unauthorized(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)

	_, err := svc.CreateQuestion(context.Background(), nil, CreateQuestionInput{Title: "t", Description: "d"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCreateQuestion_RefreshesAuthorProfile(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	first := mustAsk(t, svc, carol)

	renamed := &model.Identity{ID: carol.ID, Name: "Carol Danvers", Image: "https://img.example/new"}
	mustAsk(t, svc, renamed)

	got, err := svc.GetQuestion(context.Background(), nil, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carol Danvers", got.Author.Name, "older content shows the refreshed profile")
	assert.Equal(t, "https://img.example/new", got.Author.Image)
}

func TestCreateQuestion_StorageFailureIsNotRetried(t *testing.T) {
	db := newTestStore(t)
	flaky := newFlakyRepo(db)
	flaky.createQuestionErr = errDiskIO
	svc := NewForumService(flaky, VotePolicyNoop, quietLogger())

	_, err := svc.CreateQuestion(context.Background(), alice, CreateQuestionInput{Title: "t", Description: "d"})

	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.Equal(t, 1, flaky.calls["CreateQuestion"], "writes are never retried blindly")
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetQuestion_NotFound(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)

	_, err := svc.GetQuestion(context.Background(), alice, "does-not-exist")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetQuestion_CommentsAndCallerVotes(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	ctx := context.Background()
	q := mustAsk(t, svc, alice)
	c1 := mustComment(t, svc, bob, q.ID, "first")
	c2 := mustComment(t, svc, alice, q.ID, "second")

	_, err := svc.VoteQuestion(ctx, bob, q.ID, "UP")
	require.NoError(t, err)
	_, err = svc.VoteComment(ctx, bob, q.ID, c2.ID, "DOWN")
	require.NoError(t, err)

	asBob, err := svc.GetQuestion(ctx, bob, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VoteUp, asBob.UserVote)
	require.Len(t, asBob.Comments, 2)
	assert.Equal(t, c1.ID, asBob.Comments[0].ID, "comments are oldest first")
	assert.Equal(t, c2.ID, asBob.Comments[1].ID)
	assert.Equal(t, model.VoteType(""), asBob.Comments[0].UserVote)
	assert.Equal(t, model.VoteDown, asBob.Comments[1].UserVote)
	assert.Equal(t, 2, asBob.CommentCount)
	assert.Equal(t, bob.Name, asBob.Comments[0].Author.Name)

	anon, err := svc.GetQuestion(ctx, nil, q.ID)
	require.NoError(t, err)
	assert.Empty(t, anon.UserVote)
	assert.Empty(t, anon.Comments[1].UserVote)

	asAlice, err := svc.GetQuestion(ctx, alice, q.ID)
	require.NoError(t, err)
	assert.Empty(t, asAlice.UserVote, "votes are per caller")
}

func TestGetQuestion_RetriesReadOnce(t *testing.T) {
	db := newTestStore(t)
	flaky := newFlakyRepo(db)
	svc := NewForumService(flaky, VotePolicyNoop, quietLogger())
	q := mustAsk(t, svc, alice)

	flaky.getQuestionFailures = 1
	got, err := svc.GetQuestion(context.Background(), nil, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)

	flaky.getQuestionFailures = 2
	_, err = svc.GetQuestion(context.Background(), nil, q.ID)
	assert.ErrorIs(t, err, apperror.ErrStorage)
}

func TestListQuestions_NewestFirstWithFilters(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	ctx := context.Background()
	q1 := mustAsk(t, svc, alice, "go")
	q2 := mustAsk(t, svc, bob, "rust")
	q3 := mustAsk(t, svc, alice, "go", "sql")
	mustComment(t, svc, bob, q3.ID, "nice")
	_, err := svc.VoteQuestion(ctx, bob, q1.ID, "DOWN")
	require.NoError(t, err)

	all, err := svc.ListQuestions(ctx, bob, ListQuestionsInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{q3.ID, q2.ID, q1.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 1, all[0].CommentCount)
	assert.Equal(t, model.VoteDown, all[2].UserVote)
	assert.Equal(t, -1, all[2].Votes)

	goOnly, err := svc.ListQuestions(ctx, nil, ListQuestionsInput{Tag: " go "})
	require.NoError(t, err)
	require.Len(t, goOnly, 2)
	assert.Empty(t, goOnly[1].UserVote)

	page, err := svc.ListQuestions(ctx, nil, ListQuestionsInput{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, q2.ID, page[0].ID)
}

func TestListQuestions_Empty(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)

	list, err := svc.ListQuestions(context.Background(), nil, ListQuestionsInput{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListQuestions_RejectsNegativePaging(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)

	_, err := svc.ListQuestions(context.Background(), nil, ListQuestionsInput{Limit: -1})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.ListQuestions(context.Background(), nil, ListQuestionsInput{Offset: -5})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListQuestions_StorageFailureIsReportedNotEmpty(t *testing.T) {
	db := newTestStore(t)
	flaky := newFlakyRepo(db)
	svc := NewForumService(flaky, VotePolicyNoop, quietLogger())
	mustAsk(t, svc, alice)

	flaky.listQuestionFailures = 1
	list, err := svc.ListQuestions(context.Background(), nil, ListQuestionsInput{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, flaky.calls["ListQuestions"])

	flaky.listQuestionFailures = 2
	list, err = svc.ListQuestions(context.Background(), nil, ListQuestionsInput{})
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.Nil(t, list)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteQuestion_CascadesCommentsAndVotes(t *testing.T) {
	svc, db := newTestService(t, VotePolicyNoop)
	ctx := context.Background()
	q := mustAsk(t, svc, alice, "go")
	c1 := mustComment(t, svc, bob, q.ID, "one")
	c2 := mustComment(t, svc, carol, q.ID, "two")
	_, err := svc.VoteQuestion(ctx, bob, q.ID, "UP")
	require.NoError(t, err)
	_, err = svc.VoteComment(ctx, alice, q.ID, c1.ID, "UP")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteQuestion(ctx, alice, q.ID))

	_, err = svc.GetQuestion(ctx, nil, q.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	remaining, err := db.ListComments(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "no orphan comments survive")
	for _, id := range []string{c1.ID, c2.ID} {
		_, err := db.GetComment(ctx, id)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	}

	v, err := db.GetVote(ctx, alice.ID, model.CommentTarget(c1.ID))
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = db.GetVote(ctx, bob.ID, model.QuestionTarget(q.ID))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDeleteQuestion_NonAuthorIsForbidden(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	ctx := context.Background()
	q := mustAsk(t, svc, alice)
	mustComment(t, svc, alice, q.ID, "mine")
	mustComment(t, svc, bob, q.ID, "bob's")

	err := svc.DeleteQuestion(ctx, bob, q.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	got, err := svc.GetQuestion(ctx, nil, q.ID)
	require.NoError(t, err, "the question must remain intact")
	assert.Len(t, got.Comments, 2, "its comments must remain intact")
}

func TestDeleteQuestion_Errors(t *testing.T) {
	svc, _ := newTestService(t, VotePolicyNoop)
	q := mustAsk(t, svc, alice)

	assert.ErrorIs(t, svc.DeleteQuestion(context.Background(), nil, q.ID), apperror.ErrUnauthorized)
	assert.ErrorIs(t, svc.DeleteQuestion(context.Background(), alice, "missing"), apperror.ErrNotFound)

	require.NoError(t, svc.DeleteQuestion(context.Background(), alice, q.ID))
	assert.ErrorIs(t, svc.DeleteQuestion(context.Background(), alice, q.ID), apperror.ErrNotFound)
}

func TestDeleteQuestion_UsesStorageCascade(t *testing.T) {
	db := newTestStore(t)
	var deleted []string
	repo := &recordingDeleteRepo{ForumRepository: db, deleted: &deleted}
	svc := NewForumService(repo, VotePolicyNoop, quietLogger())
	q := mustAsk(t, svc, alice)
	mustComment(t, svc, bob, q.ID, "x")

	require.NoError(t, svc.DeleteQuestion(context.Background(), alice, q.ID))
	assert.Equal(t, []string{"question:" + q.ID}, deleted,
		"a single cascading storage call, never comment-by-comment deletes")
}

// recordingDeleteRepo records every delete the service issues.
type recordingDeleteRepo struct {
	repository.ForumRepository
	deleted *[]string
}

func (r *recordingDeleteRepo) DeleteQuestion(ctx context.Context, id string) error {
	*r.deleted = append(*r.deleted, "question:"+id)
	return r.ForumRepository.DeleteQuestion(ctx, id)
}

func (r *recordingDeleteRepo) DeleteComment(ctx context.Context, id string) error {
	*r.deleted = append(*r.deleted, "comment:"+id)
	return r.ForumRepository.DeleteComment(ctx, id)
}
