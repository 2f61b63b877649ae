package dto

import "github.com/noah-isme/query-kb-api/internal/models"

// UpdateKnowledgeBaseRequest edits operational entry fields; provenance is not editable.
type UpdateKnowledgeBaseRequest struct {
	Title             *string                     `json:"title" validate:"omitempty,min=5,max=200"`
	Content           *string                     `json:"content" validate:"omitempty,min=10"`
	Summary           *string                     `json:"summary" validate:"omitempty,max=300"`
	Organization      *models.Organization        `json:"organization" validate:"omitempty,kb_organization"`
	Tags              []string                    `json:"tags" validate:"omitempty,dive,max=50"`
	SearchKeywords    []string                    `json:"searchKeywords" validate:"omitempty,dive,max=50"`
	AlternativeTitles []string                    `json:"alternativeTitles" validate:"omitempty,dive,max=200"`
	Status            *models.KnowledgeBaseStatus `json:"status" validate:"omitempty,oneof=draft published archived under_review"`
	Featured          *bool                       `json:"featured"`
}

// Empty reports whether no field was supplied.
func (r UpdateKnowledgeBaseRequest) Empty() bool {
	return r.Title == nil && r.Content == nil && r.Summary == nil && r.Organization == nil &&
		r.Tags == nil && r.SearchKeywords == nil && r.AlternativeTitles == nil &&
		r.Status == nil && r.Featured == nil
}

// RateKnowledgeBaseRequest records a 1..5 score.
type RateKnowledgeBaseRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"omitempty,max=200"`
}

// KnowledgeBaseListParams mirrors the supported listing filters.
type KnowledgeBaseListParams struct {
	Organization models.Organization
	Status       models.KnowledgeBaseStatus
	Featured     *bool
	Tag          string
	Search       string
	Page         int
	PageSize     int
}

// KnowledgeBaseView decorates an entry with derived values.
type KnowledgeBaseView struct {
	*models.KnowledgeBaseEntry
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"ratingCount"`
}

// NewKnowledgeBaseView derives the presentation form of an entry.
func NewKnowledgeBaseView(entry *models.KnowledgeBaseEntry) *KnowledgeBaseView {
	if entry == nil {
		return nil
	}
	return &KnowledgeBaseView{
		KnowledgeBaseEntry: entry,
		AverageRating:      entry.AverageRating(),
		RatingCount:        len(entry.Ratings),
	}
}
