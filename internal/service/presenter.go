package service

import (
	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
)

type actorLookup map[string]dto.ActorView

func (l actorLookup) ref(id string) *dto.ActorView {
	if id == "" {
		return nil
	}
	if view, ok := l[id]; ok {
		return &view
	}
	return &dto.ActorView{ID: id}
}

// presentQuery joins the aggregate with resolved actors.
func presentQuery(q *models.Query, actors actorLookup) *dto.QueryView {
	view := &dto.QueryView{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		Organization:       q.Organization,
		Cause:              q.Cause,
		Stage:              q.Stage,
		Tags:               q.Tags,
		Status:             q.Status,
		SubmittedBy:        actors.ref(q.SubmittedBy),
		Answers:            make([]dto.AnswerView, 0, len(q.Answers)),
		Comments:           make([]dto.CommentView, 0, len(q.Comments)),
		Workflow:           q.Workflow,
		ActionCounts:       q.ActionCounts,
		Views:              q.Views,
		KnowledgeBaseEntry: q.KnowledgeBaseEntry,
		Revision:           q.Revision,
		CreatedAt:          q.CreatedAt,
		UpdatedAt:          q.UpdatedAt,
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	for _, a := range q.Answers {
		view.Answers = append(view.Answers, dto.AnswerView{
			Content:      a.Content,
			ProvidedBy:   actors.ref(a.ProvidedBy),
			ProvidedAt:   a.ProvidedAt,
			Helpful:      a.Helpful,
			ManagerNotes: a.ManagerNotes,
		})
	}
	if q.Solution != nil {
		view.Solution = &dto.SolutionView{
			Content:      q.Solution.Content,
			ProvidedBy:   actors.ref(q.Solution.ProvidedBy),
			ProvidedAt:   q.Solution.ProvidedAt,
			ManagerNotes: q.Solution.ManagerNotes,
		}
	}
	if r := q.AdminReview; r != nil {
		view.AdminReview = &dto.AdminReviewView{
			ReviewedBy:       actors.ref(r.ReviewedBy),
			ReviewedAt:       r.ReviewedAt,
			Status:           r.Status,
			EditedSolution:   r.EditedSolution,
			AdminFeedback:    r.AdminFeedback,
			ApprovalReason:   r.ApprovalReason,
			RejectionReason:  r.RejectionReason,
			OriginalSolution: r.OriginalSolution,
		}
	}
	for _, c := range q.Comments {
		view.Comments = append(view.Comments, dto.CommentView{
			User:      actors.ref(c.User),
			Message:   c.Message,
			Type:      c.Type,
			CreatedAt: c.CreatedAt,
		})
	}
	return view
}

func presentQuerySummary(q *models.Query, actors actorLookup) dto.QuerySummary {
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	return dto.QuerySummary{
		ID:           q.ID,
		Title:        q.Title,
		Organization: q.Organization,
		Status:       q.Status,
		Tags:         tags,
		SubmittedBy:  actors.ref(q.SubmittedBy),
		ActionCounts: q.ActionCounts,
		Views:        q.Views,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}
