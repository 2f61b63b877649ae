package models

import "time"

// Organization enumerates the field organizations that may submit queries.
type Organization string

const (
	OrgKhushii        Organization = "KHUSHII"
	OrgJWP            Organization = "JWP"
	OrgAnimalCare     Organization = "ANIMAL CARE"
	OrgGreenEarth     Organization = "GREEN EARTH"
	OrgEducationFirst Organization = "EDUCATION FIRST"
	// OrgAll is only valid on knowledge base entries.
	OrgAll Organization = "ALL"
)

// QueryStatus captures the lifecycle state of a query.
type QueryStatus string

const (
	QueryStatusNew              QueryStatus = "new"
	QueryStatusAssigned         QueryStatus = "assigned"
	QueryStatusUnderDiscussion  QueryStatus = "under_discussion"
	QueryStatusSolutionProvided QueryStatus = "solution_provided"
	QueryStatusPendingReview    QueryStatus = "pending_review"
	QueryStatusApproved         QueryStatus = "approved"
	QueryStatusRejected         QueryStatus = "rejected"
	QueryStatusPublished        QueryStatus = "published"
	QueryStatusArchived         QueryStatus = "archived"
)

// QueryStatuses lists every status in lifecycle order.
var QueryStatuses = []QueryStatus{
	QueryStatusNew,
	QueryStatusAssigned,
	QueryStatusUnderDiscussion,
	QueryStatusSolutionProvided,
	QueryStatusPendingReview,
	QueryStatusApproved,
	QueryStatusRejected,
	QueryStatusPublished,
	QueryStatusArchived,
}

// Valid reports whether the status is a known lifecycle state.
func (s QueryStatus) Valid() bool {
	for _, st := range QueryStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// WorkflowStage is the coarse phase marker tracked alongside status.
type WorkflowStage string

const (
	StageManagerReview WorkflowStage = "manager_review"
	StageAdminReview   WorkflowStage = "admin_review"
	StageCompleted     WorkflowStage = "completed"
)

// ReviewDecision is the outcome recorded by an admin review.
type ReviewDecision string

const (
	ReviewPending  ReviewDecision = ""
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// CommentType classifies discussion entries.
type CommentType string

const (
	CommentTypeComment   CommentType = "comment"
	CommentTypeSolution  CommentType = "solution"
	CommentTypeReview    CommentType = "review"
	CommentTypeApproval  CommentType = "approval"
	CommentTypeRejection CommentType = "rejection"
)

// Answer is one entry of the append-only discussion log.
type Answer struct {
	Content      string    `json:"content" bson:"content"`
	ProvidedBy   string    `json:"providedBy" bson:"providedBy"`
	ProvidedAt   time.Time `json:"providedAt" bson:"providedAt"`
	Helpful      *bool     `json:"helpful,omitempty" bson:"helpful,omitempty"`
	ManagerNotes string    `json:"managerNotes,omitempty" bson:"managerNotes,omitempty"`
}

// Solution is the single active proposed resolution.
type Solution struct {
	Content      string    `json:"content" bson:"content"`
	ProvidedBy   string    `json:"providedBy" bson:"providedBy"`
	ProvidedAt   time.Time `json:"providedAt" bson:"providedAt"`
	ManagerNotes string    `json:"managerNotes,omitempty" bson:"managerNotes,omitempty"`
}

// AdminReview holds the current review decision plus the write-once original solution.
type AdminReview struct {
	ReviewedBy       string         `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time     `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	Status           ReviewDecision `json:"status" bson:"status"`
	EditedSolution   string         `json:"editedSolution,omitempty" bson:"editedSolution,omitempty"`
	AdminFeedback    string         `json:"adminFeedback,omitempty" bson:"adminFeedback,omitempty"`
	ApprovalReason   string         `json:"approvalReason,omitempty" bson:"approvalReason,omitempty"`
	RejectionReason  string         `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	OriginalSolution string         `json:"originalSolution,omitempty" bson:"originalSolution,omitempty"`
}

// Comment is one entry of the append-only comment log.
type Comment struct {
	User      string      `json:"user" bson:"user"`
	Message   string      `json:"message" bson:"message"`
	Type      CommentType `json:"type" bson:"type"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdAt"`
}

// Workflow tracks the coarse stage and when it was entered.
type Workflow struct {
	CurrentStage   WorkflowStage `json:"currentStage" bson:"currentStage"`
	StageStartedAt time.Time     `json:"stageStartedAt" bson:"stageStartedAt"`
}

// ActionCounts are denormalised counters kept in step with the logs.
type ActionCounts struct {
	Answers  int `json:"answers" bson:"answers"`
	Comments int `json:"comments" bson:"comments"`
}

// Query is the aggregate root of the review-and-publication workflow.
//
// Views lives outside the persisted document body so read counting never
// rewrites the rest of the aggregate.
type Query struct {
	ID                 string         `json:"id" bson:"_id"`
	Title              string         `json:"title" bson:"title"`
	Description        string         `json:"description" bson:"description"`
	Organization       Organization   `json:"organization" bson:"organization"`
	Cause              string         `json:"cause,omitempty" bson:"cause,omitempty"`
	Stage              string         `json:"stage,omitempty" bson:"stage,omitempty"`
	Tags               []string       `json:"tags" bson:"tags"`
	Status             QueryStatus    `json:"status" bson:"status"`
	SubmittedBy        string         `json:"submittedBy" bson:"submittedBy"`
	Answers            []Answer       `json:"answers" bson:"answers"`
	Solution           *Solution      `json:"solution,omitempty" bson:"solution,omitempty"`
	AdminReview        *AdminReview   `json:"adminReview,omitempty" bson:"adminReview,omitempty"`
	Comments           []Comment      `json:"comments" bson:"comments"`
	Workflow           Workflow       `json:"workflow" bson:"workflow"`
	ActionCounts       ActionCounts   `json:"actionCounts" bson:"actionCounts"`
	Views              int64          `json:"views" bson:"views"`
	KnowledgeBaseEntry *string        `json:"knowledgeBaseEntry,omitempty" bson:"knowledgeBaseEntry,omitempty"`
	Revision           int            `json:"revision" bson:"revision"`
	CreatedAt          time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// QueryFilter constrains listing queries.
type QueryFilter struct {
	Status       []QueryStatus
	Organization Organization
	SubmittedBy  string
	Search       string
	SortBy       string
	SortOrder    string
	Page         int
	PageSize     int
}

// QueryStats aggregates counts per status and organization.
type QueryStats struct {
	Total          int                  `json:"total"`
	ByStatus       map[QueryStatus]int  `json:"byStatus"`
	ByOrganization map[Organization]int `json:"byOrganization"`
}
