package models

import (
	"errors"
	"strings"
	"time"
)

// Lifecycle precondition failures. Callers translate these into INVALID_STATE responses.
var (
	ErrEmptySolution      = errors.New("solution content is required")
	ErrNoSolution         = errors.New("no solution provided for this query")
	ErrInvalidDecision    = errors.New("review status must be approved or rejected")
	ErrNotApproved        = errors.New("only approved queries can be published to knowledge base")
	ErrAlreadyPublished   = errors.New("query already published to knowledge base")
	ErrNoPublishContent   = errors.New("no solution content available for publishing")
	ErrQueryClosed        = errors.New("query is closed for further solution work")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrEmptyAnswer        = errors.New("answer content is required")
	ErrEmptyCommentText   = errors.New("comment message is required")
	ErrInvalidCommentType = errors.New("unsupported comment type")
	ErrPublishedDelete    = errors.New("published queries cannot be deleted")
)

// transitions is the fixed state machine. Keys are target statuses, values the
// statuses they may be entered from.
var transitions = map[QueryStatus][]QueryStatus{
	QueryStatusUnderDiscussion: {QueryStatusNew, QueryStatusAssigned},
	QueryStatusSolutionProvided: {
		QueryStatusNew, QueryStatusAssigned, QueryStatusUnderDiscussion, QueryStatusSolutionProvided,
		QueryStatusPendingReview, QueryStatusApproved, QueryStatusRejected,
	},
	QueryStatusApproved: {
		QueryStatusNew, QueryStatusAssigned, QueryStatusUnderDiscussion, QueryStatusSolutionProvided,
		QueryStatusPendingReview, QueryStatusApproved, QueryStatusRejected,
	},
	QueryStatusRejected: {
		QueryStatusNew, QueryStatusAssigned, QueryStatusUnderDiscussion, QueryStatusSolutionProvided,
		QueryStatusPendingReview, QueryStatusApproved, QueryStatusRejected,
	},
	QueryStatusPublished: {QueryStatusApproved},
}

// CanTransition reports whether the state machine allows moving from -> to.
func CanTransition(from, to QueryStatus) bool {
	for _, allowed := range transitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// Closed reports whether the query has left the editable part of the lifecycle.
func (q *Query) Closed() bool {
	return q.Status == QueryStatusPublished || q.Status == QueryStatusArchived
}

// HasSolution reports whether a non-empty solution is attached.
func (q *Query) HasSolution() bool {
	return q.Solution != nil && strings.TrimSpace(q.Solution.Content) != ""
}

// CheckDeletable refuses deletion once a knowledge base entry depends on the query.
func (q *Query) CheckDeletable() error {
	if q.Status == QueryStatusPublished || q.KnowledgeBaseEntry != nil {
		return ErrPublishedDelete
	}
	return nil
}

// IsSubmitter reports whether actorID created the query.
func (q *Query) IsSubmitter(actorID string) bool {
	return actorID != "" && q.SubmittedBy == actorID
}

// NewQuery builds a freshly submitted query in status new.
func NewQuery(id, submittedBy string, fields QueryFields, now time.Time) *Query {
	q := &Query{
		ID:          id,
		SubmittedBy: submittedBy,
		Status:      QueryStatusNew,
		Answers:     []Answer{},
		Comments:    []Comment{},
		Workflow:    Workflow{CurrentStage: StageManagerReview, StageStartedAt: now},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.ApplyFields(fields, now)
	return q
}

// QueryFields holds the user-editable descriptive fields. Nil pointers are left untouched.
type QueryFields struct {
	Title        *string
	Description  *string
	Organization *Organization
	Cause        *string
	Stage        *string
	Tags         []string
}

// ApplyFields edits descriptive fields only; it never touches status or sub-records.
func (q *Query) ApplyFields(f QueryFields, now time.Time) {
	if f.Title != nil {
		q.Title = strings.TrimSpace(*f.Title)
	}
	if f.Description != nil {
		q.Description = strings.TrimSpace(*f.Description)
	}
	if f.Organization != nil {
		q.Organization = *f.Organization
	}
	if f.Cause != nil {
		q.Cause = strings.TrimSpace(*f.Cause)
	}
	if f.Stage != nil {
		q.Stage = strings.TrimSpace(*f.Stage)
	}
	if f.Tags != nil {
		q.Tags = NormalizeTags(f.Tags)
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.UpdatedAt = now
}

// AddAnswer appends to the answer log and promotes new/assigned queries into discussion.
func (q *Query) AddAnswer(a Answer, now time.Time) error {
	if strings.TrimSpace(a.Content) == "" {
		return ErrEmptyAnswer
	}
	if a.ProvidedAt.IsZero() {
		a.ProvidedAt = now
	}
	q.Answers = append(q.Answers, a)
	q.ActionCounts.Answers++
	if CanTransition(q.Status, QueryStatusUnderDiscussion) {
		q.Status = QueryStatusUnderDiscussion
	}
	q.UpdatedAt = now
	return nil
}

// ProposeSolution replaces the active solution and sends the query to admin review.
// Any previous review decision is cleared; originalSolution is preserved.
func (q *Query) ProposeSolution(s Solution, now time.Time) error {
	if strings.TrimSpace(s.Content) == "" {
		return ErrEmptySolution
	}
	if q.Closed() {
		return ErrQueryClosed
	}
	if !CanTransition(q.Status, QueryStatusSolutionProvided) {
		return ErrIllegalTransition
	}
	if s.ProvidedAt.IsZero() {
		s.ProvidedAt = now
	}
	q.Solution = &s
	q.Status = QueryStatusSolutionProvided
	if q.AdminReview != nil {
		q.AdminReview.Status = ReviewPending
	}
	// every proposal opens a fresh admin review window
	q.Workflow = Workflow{CurrentStage: StageAdminReview, StageStartedAt: now}
	q.UpdatedAt = now
	return nil
}

// Review records an admin decision on the current solution.
type Review struct {
	ReviewerID      string
	Decision        ReviewDecision
	EditedSolution  string
	AdminFeedback   string
	ApprovalReason  string
	RejectionReason string
}

// ReviewSolution applies an approve/reject decision. It may be called repeatedly;
// originalSolution is captured on the first call only.
func (q *Query) ReviewSolution(r Review, now time.Time) error {
	if r.Decision != ReviewApproved && r.Decision != ReviewRejected {
		return ErrInvalidDecision
	}
	if q.Closed() {
		return ErrQueryClosed
	}
	if !q.HasSolution() {
		return ErrNoSolution
	}
	target := QueryStatusApproved
	if r.Decision == ReviewRejected {
		target = QueryStatusRejected
	}
	if !CanTransition(q.Status, target) {
		return ErrIllegalTransition
	}

	review := AdminReview{}
	if q.AdminReview != nil {
		review = *q.AdminReview
	}
	if review.OriginalSolution == "" {
		review.OriginalSolution = q.Solution.Content
	}
	edited := strings.TrimSpace(r.EditedSolution)
	reviewedAt := now
	review.ReviewedBy = r.ReviewerID
	review.ReviewedAt = &reviewedAt
	review.Status = r.Decision
	review.EditedSolution = q.Solution.Content
	if edited != "" {
		review.EditedSolution = edited
	}
	review.AdminFeedback = r.AdminFeedback
	review.ApprovalReason = r.ApprovalReason
	review.RejectionReason = r.RejectionReason
	q.AdminReview = &review

	q.Status = target
	if r.Decision == ReviewApproved {
		if edited != "" {
			q.Solution.Content = edited
		}
		q.enterStage(StageCompleted, now)
	} else {
		q.enterStage(StageManagerReview, now)
	}
	q.UpdatedAt = now
	return nil
}

// PublishContent returns the text that publication would copy into the knowledge base.
func (q *Query) PublishContent() (string, error) {
	if q.Status == QueryStatusPublished || q.KnowledgeBaseEntry != nil {
		return "", ErrAlreadyPublished
	}
	if q.Status != QueryStatusApproved {
		return "", ErrNotApproved
	}
	if q.AdminReview != nil && strings.TrimSpace(q.AdminReview.EditedSolution) != "" {
		return q.AdminReview.EditedSolution, nil
	}
	if q.HasSolution() {
		return q.Solution.Content, nil
	}
	return "", ErrNoPublishContent
}

// MarkPublished links the knowledge base entry and moves the query to published.
func (q *Query) MarkPublished(entryID string, now time.Time) error {
	if _, err := q.PublishContent(); err != nil {
		return err
	}
	q.KnowledgeBaseEntry = &entryID
	q.Status = QueryStatusPublished
	q.UpdatedAt = now
	return nil
}

// AddComment appends to the comment log without affecting status.
func (q *Query) AddComment(c Comment, now time.Time) error {
	if strings.TrimSpace(c.Message) == "" {
		return ErrEmptyCommentText
	}
	if c.Type == "" {
		c.Type = CommentTypeComment
	}
	switch c.Type {
	case CommentTypeComment, CommentTypeSolution, CommentTypeReview, CommentTypeApproval, CommentTypeRejection:
	default:
		return ErrInvalidCommentType
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	q.Comments = append(q.Comments, c)
	q.ActionCounts.Comments++
	q.UpdatedAt = now
	return nil
}

// ActorIDs returns every distinct actor referenced by the aggregate.
func (q *Query) ActorIDs() []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 4+len(q.Answers)+len(q.Comments))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(q.SubmittedBy)
	for _, a := range q.Answers {
		add(a.ProvidedBy)
	}
	if q.Solution != nil {
		add(q.Solution.ProvidedBy)
	}
	if q.AdminReview != nil {
		add(q.AdminReview.ReviewedBy)
	}
	for _, c := range q.Comments {
		add(c.User)
	}
	return ids
}

func (q *Query) enterStage(stage WorkflowStage, now time.Time) {
	if q.Workflow.CurrentStage == stage {
		return
	}
	q.Workflow.CurrentStage = stage
	q.Workflow.StageStartedAt = now
}

// NormalizeTags trims, lower-cases and de-duplicates tags preserving first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
