package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedQuery(t *testing.T, now time.Time) *Query {
	t.Helper()
	q := newTestQuery(t, now)
	require.NoError(t, q.ProposeSolution(Solution{Content: "fix X", ProvidedBy: "mgr-1"}, now))
	require.NoError(t, q.ReviewSolution(Review{
		ReviewerID:     "adm-1",
		Decision:       ReviewApproved,
		EditedSolution: "fix X edited",
		AdminFeedback:  "tightened wording",
	}, now))
	return q
}

func TestNewKnowledgeBaseEntryProvenance(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	q := approvedQuery(t, now)

	entry, err := NewKnowledgeBaseEntry("kb-1", q, PublishOptions{
		Summary:        "Pump fix",
		SearchKeywords: []string{"Pump", "PUMP", "fuse"},
	}, "adm-1", now)
	require.NoError(t, err)

	assert.Equal(t, "fix X edited", entry.Content)
	assert.Equal(t, "Pump failure", entry.Title)
	assert.Equal(t, OrgJWP, entry.Organization)
	assert.Equal(t, []string{"pump", "field"}, entry.Tags)
	assert.Equal(t, []string{"pump", "fuse"}, entry.SearchKeywords)
	assert.Equal(t, KBStatusPublished, entry.Status)
	assert.Equal(t, 1, entry.Version)

	assert.Equal(t, "q-1", entry.Workflow.SourceQuery)
	assert.Equal(t, "mgr-1", entry.Workflow.SolutionProvider)
	assert.Equal(t, "fix X", entry.Workflow.OriginalSolution)
	assert.Equal(t, "adm-1", entry.Workflow.ApprovedBy)
	assert.Equal(t, "tightened wording", entry.Workflow.AdminEdits)
	require.NotNil(t, entry.Workflow.ApprovalDate)
	assert.Equal(t, now, entry.Workflow.PublishedAt)

	assert.Equal(t, QueryStatusApproved, q.Status, "deriving an entry must not mutate the query")
}

func TestNewKnowledgeBaseEntryRequiresApproval(t *testing.T) {
	now := time.Now()
	q := newTestQuery(t, now)
	_, err := NewKnowledgeBaseEntry("kb-1", q, PublishOptions{}, "adm-1", now)
	require.ErrorIs(t, err, ErrNotApproved)
}

func TestApplyEditBumpsVersionKeepsProvenance(t *testing.T) {
	now := time.Now()
	entry, err := NewKnowledgeBaseEntry("kb-1", approvedQuery(t, now), PublishOptions{Title: "Pump fixes"}, "adm-1", now)
	require.NoError(t, err)
	before := entry.Workflow

	title := "Pump fixes (2024)"
	featured := true
	entry.ApplyEdit(KnowledgeBaseEdit{Title: &title, Featured: &featured}, "adm-2", now.Add(time.Minute))

	assert.Equal(t, 2, entry.Version)
	assert.Equal(t, "adm-2", entry.LastUpdatedBy)
	assert.Equal(t, title, entry.Title)
	assert.True(t, entry.Featured)
	assert.Equal(t, before, entry.Workflow)
}

func TestAddRatingOncePerUser(t *testing.T) {
	now := time.Now()
	entry := &KnowledgeBaseEntry{ID: "kb-1", Ratings: []Rating{}}

	require.NoError(t, entry.AddRating(Rating{User: "u-1", Rating: 5}, now))
	require.NoError(t, entry.AddRating(Rating{User: "u-2", Rating: 1}, now))
	require.ErrorIs(t, entry.AddRating(Rating{User: "u-1", Rating: 3}, now), ErrAlreadyRated)

	assert.Len(t, entry.Ratings, 2)
	assert.Equal(t, 1, entry.Metrics.Helpful)
	assert.Equal(t, 1, entry.Metrics.NotHelpful)
	assert.InDelta(t, 3.0, entry.AverageRating(), 0.001)
}
