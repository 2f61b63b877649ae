package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestQuery(t *testing.T, now time.Time) *Query {
	t.Helper()
	org := OrgJWP
	return NewQuery("q-1", "sales-1", QueryFields{
		Title:        strPtr("  Pump failure  "),
		Description:  strPtr("Water pump stops after an hour"),
		Organization: &org,
		Tags:         []string{"Pump", "pump ", "field"},
	}, now)
}

func TestNewQueryDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQuery(t, now)

	assert.Equal(t, QueryStatusNew, q.Status)
	assert.Equal(t, "Pump failure", q.Title)
	assert.Equal(t, []string{"pump", "field"}, q.Tags)
	assert.Equal(t, StageManagerReview, q.Workflow.CurrentStage)
	assert.Equal(t, now, q.Workflow.StageStartedAt)
	assert.Empty(t, q.Answers)
	assert.Empty(t, q.Comments)
}

func TestAddAnswerPromotesOnlyFromNewOrAssigned(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQuery(t, now)

	require.NoError(t, q.AddAnswer(Answer{Content: "check the fuse", ProvidedBy: "mgr-1"}, now))
	assert.Equal(t, QueryStatusUnderDiscussion, q.Status)

	require.NoError(t, q.AddAnswer(Answer{Content: "also the float", ProvidedBy: "mgr-2"}, now))
	assert.Equal(t, QueryStatusUnderDiscussion, q.Status)
	assert.Equal(t, 2, q.ActionCounts.Answers)
	require.Len(t, q.Answers, 2)
	assert.Equal(t, "check the fuse", q.Answers[0].Content)

	q.Status = QueryStatusAssigned
	require.NoError(t, q.AddAnswer(Answer{Content: "third", ProvidedBy: "mgr-1"}, now))
	assert.Equal(t, QueryStatusUnderDiscussion, q.Status)

	q.Status = QueryStatusApproved
	require.NoError(t, q.AddAnswer(Answer{Content: "late", ProvidedBy: "mgr-1"}, now))
	assert.Equal(t, QueryStatusApproved, q.Status)
}

func TestAddAnswerRejectsEmptyContent(t *testing.T) {
	q := newTestQuery(t, time.Now())
	require.ErrorIs(t, q.AddAnswer(Answer{Content: "   "}, time.Now()), ErrEmptyAnswer)
	assert.Equal(t, 0, q.ActionCounts.Answers)
	assert.Equal(t, QueryStatusNew, q.Status)
}

func TestProposeSolutionAlwaysOverwrites(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	q := newTestQuery(t, t0)

	require.NoError(t, q.ProposeSolution(Solution{Content: "fix X", ProvidedBy: "mgr-1"}, t0))
	assert.Equal(t, QueryStatusSolutionProvided, q.Status)
	assert.Equal(t, StageAdminReview, q.Workflow.CurrentStage)

	require.NoError(t, q.ReviewSolution(Review{ReviewerID: "adm-1", Decision: ReviewApproved}, t0))
	require.Equal(t, QueryStatusApproved, q.Status)

	require.NoError(t, q.ProposeSolution(Solution{Content: "fix Y", ProvidedBy: "mgr-2"}, t1))
	assert.Equal(t, QueryStatusSolutionProvided, q.Status)
	assert.Equal(t, "fix Y", q.Solution.Content)
	assert.Equal(t, "mgr-2", q.Solution.ProvidedBy)
	assert.Equal(t, ReviewPending, q.AdminReview.Status)
	assert.Equal(t, "fix X", q.AdminReview.OriginalSolution)
	assert.Equal(t, t1, q.Workflow.StageStartedAt)
}

func TestProposeSolutionGuards(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)
	require.ErrorIs(t, q.ProposeSolution(Solution{Content: ""}, now), ErrEmptySolution)
	assert.Nil(t, q.Solution)

	q.Status = QueryStatusPublished
	require.ErrorIs(t, q.ProposeSolution(Solution{Content: "x"}, now), ErrQueryClosed)
	assert.Equal(t, QueryStatusPublished, q.Status)
}

func TestReviewRequiresSolution(t *testing.T) {
	q := newTestQuery(t, time.Now())
	err := q.ReviewSolution(Review{ReviewerID: "adm-1", Decision: ReviewApproved}, time.Now())
	require.ErrorIs(t, err, ErrNoSolution)
	assert.Nil(t, q.AdminReview)
	assert.Equal(t, QueryStatusNew, q.Status)
}

func TestReviewRejectsUnknownDecision(t *testing.T) {
	q := newTestQuery(t, time.Now())
	require.NoError(t, q.ProposeSolution(Solution{Content: "fix"}, time.Now()))
	require.ErrorIs(t, q.ReviewSolution(Review{Decision: "maybe"}, time.Now()), ErrInvalidDecision)
	assert.Equal(t, QueryStatusSolutionProvided, q.Status)
}

func TestOriginalSolutionCapturedOnce(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)

	require.NoError(t, q.ProposeSolution(Solution{Content: "v1"}, now))
	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewRejected, RejectionReason: "too vague"}, now))
	assert.Equal(t, "v1", q.AdminReview.OriginalSolution)
	assert.Equal(t, StageManagerReview, q.Workflow.CurrentStage)

	require.NoError(t, q.ProposeSolution(Solution{Content: "v2"}, now))
	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewRejected, EditedSolution: "v2 tweaked"}, now))
	require.NoError(t, q.ProposeSolution(Solution{Content: "v3"}, now))
	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewApproved, EditedSolution: "v3 edited"}, now))

	assert.Equal(t, "v1", q.AdminReview.OriginalSolution)
	assert.Equal(t, "v3 edited", q.Solution.Content)
	assert.Equal(t, "v3 edited", q.AdminReview.EditedSolution)
	assert.Equal(t, QueryStatusApproved, q.Status)
	assert.Equal(t, StageCompleted, q.Workflow.CurrentStage)
}

func TestRejectedReviewDoesNotApplyEdit(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)
	require.NoError(t, q.ProposeSolution(Solution{Content: "v1"}, now))
	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewRejected, EditedSolution: "suggested"}, now))

	assert.Equal(t, "v1", q.Solution.Content)
	assert.Equal(t, "suggested", q.AdminReview.EditedSolution)
	assert.Equal(t, QueryStatusRejected, q.Status)
}

func TestPublishGuards(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)

	_, err := q.PublishContent()
	require.ErrorIs(t, err, ErrNotApproved)

	require.NoError(t, q.ProposeSolution(Solution{Content: "fix"}, now))
	require.ErrorIs(t, q.MarkPublished("kb-1", now), ErrNotApproved)

	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewApproved}, now))
	content, err := q.PublishContent()
	require.NoError(t, err)
	assert.Equal(t, "fix", content)

	require.NoError(t, q.MarkPublished("kb-1", now))
	assert.Equal(t, QueryStatusPublished, q.Status)
	require.NotNil(t, q.KnowledgeBaseEntry)
	assert.Equal(t, "kb-1", *q.KnowledgeBaseEntry)

	require.ErrorIs(t, q.MarkPublished("kb-2", now), ErrAlreadyPublished)
	assert.Equal(t, "kb-1", *q.KnowledgeBaseEntry)

	require.ErrorIs(t, q.ReviewSolution(Review{Decision: ReviewApproved}, now), ErrQueryClosed)
}

func TestAddCommentKeepsStatus(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)

	require.NoError(t, q.AddComment(Comment{User: "mgr-1", Message: "looking"}, now))
	require.ErrorIs(t, q.AddComment(Comment{User: "mgr-1", Message: "x", Type: "shout"}, now), ErrInvalidCommentType)
	require.ErrorIs(t, q.AddComment(Comment{User: "mgr-1", Message: " "}, now), ErrEmptyCommentText)

	assert.Equal(t, QueryStatusNew, q.Status)
	assert.Equal(t, 1, q.ActionCounts.Comments)
	require.Len(t, q.Comments, 1)
	assert.Equal(t, CommentTypeComment, q.Comments[0].Type)
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(QueryStatusNew, QueryStatusUnderDiscussion))
	assert.False(t, CanTransition(QueryStatusRejected, QueryStatusUnderDiscussion))
	assert.True(t, CanTransition(QueryStatusApproved, QueryStatusPublished))
	assert.False(t, CanTransition(QueryStatusSolutionProvided, QueryStatusPublished))
	assert.False(t, CanTransition(QueryStatusPublished, QueryStatusSolutionProvided))
	assert.False(t, CanTransition(QueryStatusNew, QueryStatusArchived))
}

func TestActorIDsDistinct(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)
	require.NoError(t, q.AddAnswer(Answer{Content: "a", ProvidedBy: "mgr-1"}, now))
	require.NoError(t, q.ProposeSolution(Solution{Content: "s", ProvidedBy: "mgr-1"}, now))
	require.NoError(t, q.ReviewSolution(Review{ReviewerID: "adm-1", Decision: ReviewApproved}, now))
	require.NoError(t, q.AddComment(Comment{User: "sales-1", Message: "thanks"}, now))

	assert.Equal(t, []string{"sales-1", "mgr-1", "adm-1"}, q.ActorIDs())
}

func TestCheckDeletable(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)
	require.NoError(t, q.CheckDeletable())

	require.NoError(t, q.ProposeSolution(Solution{Content: "fix"}, now))
	require.NoError(t, q.ReviewSolution(Review{Decision: ReviewApproved}, now))
	require.NoError(t, q.CheckDeletable())

	require.NoError(t, q.MarkPublished("kb-1", now))
	require.ErrorIs(t, q.CheckDeletable(), ErrPublishedDelete)

	linked := newTestQuery(t, now)
	entryID := "kb-2"
	linked.KnowledgeBaseEntry = &entryID
	require.ErrorIs(t, linked.CheckDeletable(), ErrPublishedDelete)
}
