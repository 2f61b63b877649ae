package models

import (
	"errors"
	"strings"
	"time"
)

// KnowledgeBaseStatus captures the publication state of an entry.
type KnowledgeBaseStatus string

const (
	KBStatusDraft       KnowledgeBaseStatus = "draft"
	KBStatusPublished   KnowledgeBaseStatus = "published"
	KBStatusArchived    KnowledgeBaseStatus = "archived"
	KBStatusUnderReview KnowledgeBaseStatus = "under_review"
)

// ErrAlreadyRated is returned when a rater tries to rate the same entry twice.
var ErrAlreadyRated = errors.New("entry already rated by this user")

// KnowledgeBaseMetrics are usage counters for an entry.
type KnowledgeBaseMetrics struct {
	Views        int64      `json:"views" bson:"views"`
	Helpful      int        `json:"helpful" bson:"helpful"`
	NotHelpful   int        `json:"notHelpful" bson:"notHelpful"`
	Searches     int        `json:"searches" bson:"searches"`
	LastAccessed *time.Time `json:"lastAccessed,omitempty" bson:"lastAccessed,omitempty"`
}

// Rating is a single 1..5 score; at most one per user.
type Rating struct {
	User      string    `json:"user" bson:"user"`
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment,omitempty" bson:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Provenance is the immutable publication history copied from the source query.
type Provenance struct {
	SourceQuery      string     `json:"sourceQuery" bson:"sourceQuery"`
	SolutionProvider string     `json:"solutionProvider,omitempty" bson:"solutionProvider,omitempty"`
	OriginalSolution string     `json:"originalSolution,omitempty" bson:"originalSolution,omitempty"`
	ApprovedBy       string     `json:"approvedBy,omitempty" bson:"approvedBy,omitempty"`
	ApprovalDate     *time.Time `json:"approvalDate,omitempty" bson:"approvalDate,omitempty"`
	AdminEdits       string     `json:"adminEdits,omitempty" bson:"adminEdits,omitempty"`
	PublishedAt      time.Time  `json:"publishedAt" bson:"publishedAt"`
}

// KnowledgeBaseEntry is the searchable artifact derived from an approved query.
type KnowledgeBaseEntry struct {
	ID                string               `json:"id" bson:"_id"`
	Title             string               `json:"title" bson:"title"`
	Content           string               `json:"content" bson:"content"`
	Summary           string               `json:"summary,omitempty" bson:"summary,omitempty"`
	Organization      Organization         `json:"organization" bson:"organization"`
	Tags              []string             `json:"tags" bson:"tags"`
	SearchKeywords    []string             `json:"searchKeywords" bson:"searchKeywords"`
	AlternativeTitles []string             `json:"alternativeTitles" bson:"alternativeTitles"`
	Status            KnowledgeBaseStatus  `json:"status" bson:"status"`
	Metrics           KnowledgeBaseMetrics `json:"metrics" bson:"metrics"`
	Ratings           []Rating             `json:"ratings" bson:"ratings"`
	Featured          bool                 `json:"featured" bson:"featured"`
	Version           int                  `json:"version" bson:"version"`
	CreatedBy         string               `json:"createdBy" bson:"createdBy"`
	LastUpdatedBy     string               `json:"lastUpdatedBy,omitempty" bson:"lastUpdatedBy,omitempty"`
	Workflow          Provenance           `json:"workflow" bson:"workflow"`
	Revision          int                  `json:"revision" bson:"revision"`
	CreatedAt         time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// PublishOptions carries the optional knowledge base fields supplied at publication.
type PublishOptions struct {
	Title             string
	Summary           string
	Tags              []string
	SearchKeywords    []string
	AlternativeTitles []string
}

// NewKnowledgeBaseEntry derives an entry from an approved query. The query itself is
// not modified; callers link it with Query.MarkPublished inside the same transaction.
func NewKnowledgeBaseEntry(id string, q *Query, opts PublishOptions, publisherID string, now time.Time) (*KnowledgeBaseEntry, error) {
	content, err := q.PublishContent()
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = q.Title
	}
	if title == "" {
		title = "Untitled"
	}
	tags := q.Tags
	if len(opts.Tags) > 0 {
		tags = opts.Tags
	}

	prov := Provenance{
		SourceQuery: q.ID,
		PublishedAt: now,
	}
	if q.Solution != nil {
		prov.SolutionProvider = q.Solution.ProvidedBy
		prov.OriginalSolution = q.Solution.Content
	}
	if q.AdminReview != nil {
		if q.AdminReview.OriginalSolution != "" {
			prov.OriginalSolution = q.AdminReview.OriginalSolution
		}
		prov.ApprovedBy = q.AdminReview.ReviewedBy
		if q.AdminReview.ReviewedAt != nil {
			approvedAt := *q.AdminReview.ReviewedAt
			prov.ApprovalDate = &approvedAt
		}
		prov.AdminEdits = q.AdminReview.AdminFeedback
	}

	return &KnowledgeBaseEntry{
		ID:                id,
		Title:             title,
		Content:           content,
		Summary:           strings.TrimSpace(opts.Summary),
		Organization:      q.Organization,
		Tags:              NormalizeTags(tags),
		SearchKeywords:    NormalizeTags(opts.SearchKeywords),
		AlternativeTitles: trimAll(opts.AlternativeTitles),
		Status:            KBStatusPublished,
		Ratings:           []Rating{},
		Version:           1,
		CreatedBy:         publisherID,
		Workflow:          prov,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// KnowledgeBaseEdit lists editable entry fields; nil leaves a field untouched.
type KnowledgeBaseEdit struct {
	Title             *string
	Content           *string
	Summary           *string
	Organization      *Organization
	Tags              []string
	SearchKeywords    []string
	AlternativeTitles []string
	Status            *KnowledgeBaseStatus
	Featured          *bool
}

// ApplyEdit updates operational fields and bumps the version. Provenance is never touched.
func (e *KnowledgeBaseEntry) ApplyEdit(edit KnowledgeBaseEdit, editorID string, now time.Time) {
	if edit.Title != nil {
		e.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Content != nil {
		e.Content = strings.TrimSpace(*edit.Content)
	}
	if edit.Summary != nil {
		e.Summary = strings.TrimSpace(*edit.Summary)
	}
	if edit.Organization != nil {
		e.Organization = *edit.Organization
	}
	if edit.Tags != nil {
		e.Tags = NormalizeTags(edit.Tags)
	}
	if edit.SearchKeywords != nil {
		e.SearchKeywords = NormalizeTags(edit.SearchKeywords)
	}
	if edit.AlternativeTitles != nil {
		e.AlternativeTitles = trimAll(edit.AlternativeTitles)
	}
	if edit.Status != nil {
		e.Status = *edit.Status
	}
	if edit.Featured != nil {
		e.Featured = *edit.Featured
	}
	e.Version++
	e.LastUpdatedBy = editorID
	e.UpdatedAt = now
}

// AddRating appends a rating, enforcing one rating per user.
func (e *KnowledgeBaseEntry) AddRating(r Rating, now time.Time) error {
	for _, existing := range e.Ratings {
		if existing.User == r.User {
			return ErrAlreadyRated
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	e.Ratings = append(e.Ratings, r)
	switch {
	case r.Rating >= 4:
		e.Metrics.Helpful++
	case r.Rating <= 2:
		e.Metrics.NotHelpful++
	}
	e.UpdatedAt = now
	return nil
}

// AverageRating returns the mean score or zero when unrated.
func (e *KnowledgeBaseEntry) AverageRating() float64 {
	if len(e.Ratings) == 0 {
		return 0
	}
	total := 0
	for _, r := range e.Ratings {
		total += r.Rating
	}
	return float64(total) / float64(len(e.Ratings))
}

// KnowledgeBaseFilter constrains entry listing.
type KnowledgeBaseFilter struct {
	Organization Organization
	Status       KnowledgeBaseStatus
	Featured     *bool
	Tag          string
	Search       string
	Page         int
	PageSize     int
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
