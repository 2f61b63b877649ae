package dto

import (
	"time"

	"github.com/noah-isme/query-kb-api/internal/models"
)

// CreateQueryRequest is the payload for submitting a new query.
type CreateQueryRequest struct {
	Title        string              `json:"title" validate:"required,min=5,max=200"`
	Description  string              `json:"description" validate:"required,min=10,max=2000"`
	Organization models.Organization `json:"organization" validate:"required,organization"`
	Cause        string              `json:"cause" validate:"omitempty,max=200"`
	Stage        string              `json:"stage" validate:"omitempty,max=100"`
	Tags         []string            `json:"tags" validate:"omitempty,dive,max=50"`
}

// UpdateQueryRequest edits descriptive fields. Absent fields are left unchanged.
type UpdateQueryRequest struct {
	Title        *string              `json:"title" validate:"omitempty,min=5,max=200"`
	Description  *string              `json:"description" validate:"omitempty,min=10,max=2000"`
	Organization *models.Organization `json:"organization" validate:"omitempty,organization"`
	Cause        *string              `json:"cause" validate:"omitempty,max=200"`
	Stage        *string              `json:"stage" validate:"omitempty,max=100"`
	Tags         []string             `json:"tags" validate:"omitempty,dive,max=50"`
}

// Empty reports whether the update carries no fields at all.
func (r UpdateQueryRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Organization == nil &&
		r.Cause == nil && r.Stage == nil && r.Tags == nil
}

// AddAnswerRequest appends to the discussion log.
type AddAnswerRequest struct {
	Content      string `json:"content" validate:"required,max=5000"`
	Helpful      *bool  `json:"helpful"`
	ManagerNotes string `json:"managerNotes" validate:"omitempty,max=1000"`
}

// ProposeSolutionRequest replaces the active solution.
type ProposeSolutionRequest struct {
	Content      string `json:"content" validate:"required,max=5000"`
	ManagerNotes string `json:"managerNotes" validate:"omitempty,max=1000"`
}

// ReviewSolutionRequest carries the admin decision.
type ReviewSolutionRequest struct {
	Status          models.ReviewDecision `json:"status" validate:"required,oneof=approved rejected"`
	EditedSolution  string                `json:"editedSolution" validate:"omitempty,max=5000"`
	AdminFeedback   string                `json:"adminFeedback" validate:"omitempty,max=500"`
	ApprovalReason  string                `json:"approvalReason" validate:"omitempty,max=300"`
	RejectionReason string                `json:"rejectionReason" validate:"omitempty,max=300"`
}

// PublishRequest supplies optional knowledge base fields at publication time.
type PublishRequest struct {
	Title             string   `json:"title" validate:"omitempty,min=5,max=200"`
	Summary           string   `json:"summary" validate:"omitempty,max=300"`
	Tags              []string `json:"tags" validate:"omitempty,dive,max=50"`
	SearchKeywords    []string `json:"searchKeywords" validate:"omitempty,dive,max=50"`
	AlternativeTitles []string `json:"alternativeTitles" validate:"omitempty,dive,max=200"`
}

// AddCommentRequest appends to the comment log.
type AddCommentRequest struct {
	Message string             `json:"message" validate:"required,max=1000"`
	Type    models.CommentType `json:"type" validate:"omitempty,oneof=comment solution review approval rejection"`
}

// QueryListParams mirrors the supported listing filters.
type QueryListParams struct {
	Status       []models.QueryStatus
	Organization models.Organization
	SubmittedBy  string
	Search       string
	SortBy       string
	SortOrder    string
	Page         int
	PageSize     int
}

// ActorView is an actor reference resolved for display.
type ActorView struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Email string          `json:"email,omitempty"`
	Role  models.UserRole `json:"role,omitempty"`
}

// AnswerView is an answer with its author resolved.
type AnswerView struct {
	Content      string     `json:"content"`
	ProvidedBy   *ActorView `json:"providedBy"`
	ProvidedAt   time.Time  `json:"providedAt"`
	Helpful      *bool      `json:"helpful,omitempty"`
	ManagerNotes string     `json:"managerNotes,omitempty"`
}

// SolutionView is the active solution with its author resolved.
type SolutionView struct {
	Content      string     `json:"content"`
	ProvidedBy   *ActorView `json:"providedBy"`
	ProvidedAt   time.Time  `json:"providedAt"`
	ManagerNotes string     `json:"managerNotes,omitempty"`
}

// AdminReviewView is the review record with the reviewer resolved.
type AdminReviewView struct {
	ReviewedBy       *ActorView            `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time            `json:"reviewedAt,omitempty"`
	Status           models.ReviewDecision `json:"status"`
	EditedSolution   string                `json:"editedSolution,omitempty"`
	AdminFeedback    string                `json:"adminFeedback,omitempty"`
	ApprovalReason   string                `json:"approvalReason,omitempty"`
	RejectionReason  string                `json:"rejectionReason,omitempty"`
	OriginalSolution string                `json:"originalSolution,omitempty"`
}

// CommentView is a comment with its author resolved.
type CommentView struct {
	User      *ActorView         `json:"user"`
	Message   string             `json:"message"`
	Type      models.CommentType `json:"type"`
	CreatedAt time.Time          `json:"createdAt"`
}

// QueryView is the presentation form of a query returned by every workflow operation.
type QueryView struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Organization       models.Organization `json:"organization"`
	Cause              string              `json:"cause,omitempty"`
	Stage              string              `json:"stage,omitempty"`
	Tags               []string            `json:"tags"`
	Status             models.QueryStatus  `json:"status"`
	SubmittedBy        *ActorView          `json:"submittedBy"`
	Answers            []AnswerView        `json:"answers"`
	Solution           *SolutionView       `json:"solution,omitempty"`
	AdminReview        *AdminReviewView    `json:"adminReview,omitempty"`
	Comments           []CommentView       `json:"comments"`
	Workflow           models.Workflow     `json:"workflow"`
	ActionCounts       models.ActionCounts `json:"actionCounts"`
	Views              int64               `json:"views"`
	KnowledgeBaseEntry *string             `json:"knowledgeBaseEntry,omitempty"`
	Revision           int                 `json:"revision"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// QuerySummary is the compact row returned by listings.
type QuerySummary struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Organization models.Organization `json:"organization"`
	Status       models.QueryStatus  `json:"status"`
	Tags         []string            `json:"tags"`
	SubmittedBy  *ActorView          `json:"submittedBy"`
	ActionCounts models.ActionCounts `json:"actionCounts"`
	Views        int64               `json:"views"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}
