package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/pkg/response"
)

type queryWorkflow interface {
	Submit(ctx context.Context, actor models.Actor, req dto.CreateQueryRequest) (*dto.QueryView, error)
	Get(ctx context.Context, id string) (*dto.QueryView, error)
	List(ctx context.Context, params dto.QueryListParams) ([]dto.QuerySummary, *models.Pagination, error)
	Stats(ctx context.Context) (*models.QueryStats, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateQueryRequest) (*dto.QueryView, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	AddAnswer(ctx context.Context, actor models.Actor, id string, req dto.AddAnswerRequest) (*dto.QueryView, error)
	ProposeSolution(ctx context.Context, actor models.Actor, id string, req dto.ProposeSolutionRequest) (*dto.QueryView, error)
	ReviewSolution(ctx context.Context, actor models.Actor, id string, req dto.ReviewSolutionRequest) (*dto.QueryView, error)
	Publish(ctx context.Context, actor models.Actor, id string, req dto.PublishRequest) (*models.KnowledgeBaseEntry, error)
	AddComment(ctx context.Context, actor models.Actor, id string, req dto.AddCommentRequest) (*dto.QueryView, error)
}

// QueryHandler exposes the query review workflow.
type QueryHandler struct {
	service queryWorkflow
}

// NewQueryHandler builds a new handler.
func NewQueryHandler(service queryWorkflow) *QueryHandler {
	return &QueryHandler{service: service}
}

// Create godoc
// @Summary Submit a query
// @Tags Queries
// @Accept json
// @Produce json
// @Param payload body dto.CreateQueryRequest true "Query payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /queries [post]
func (h *QueryHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateQueryRequest
	if !bindJSON(c, &req, "invalid query payload") {
		return
	}
	view, err := h.service.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// List godoc
// @Summary List queries
// @Tags Queries
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param organization query string false "Organization"
// @Param submittedBy query string false "Submitter id"
// @Param search query string false "Free-text search"
// @Param sortBy query string false "createdAt|updatedAt|title|status"
// @Param sortOrder query string false "asc|desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Router /queries [get]
func (h *QueryHandler) List(c *gin.Context) {
	params := dto.QueryListParams{
		Organization: models.Organization(c.Query("organization")),
		SubmittedBy:  c.Query("submittedBy"),
		Search:       strings.TrimSpace(c.Query("search")),
		SortBy:       c.Query("sortBy"),
		SortOrder:    c.Query("sortOrder"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "limit", 20),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				params.Status = append(params.Status, models.QueryStatus(s))
			}
		}
	}
	items, pagination, err := h.service.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Query counts per status and organization
// @Tags Queries
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queries/stats [get]
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Get godoc
// @Summary Get a query
// @Tags Queries
// @Produce json
// @Param id path string true "Query ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /queries/{id} [get]
func (h *QueryHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Edit descriptive query fields
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.UpdateQueryRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /queries/{id} [put]
func (h *QueryHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateQueryRequest
	if !bindJSON(c, &req, "invalid query update") {
		return
	}
	view, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Delete godoc
// @Summary Delete a query
// @Tags Queries
// @Param id path string true "Query ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope "query already published"
// @Router /queries/{id} [delete]
func (h *QueryHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddAnswer godoc
// @Summary Add an answer to the discussion
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.AddAnswerRequest true "Answer"
// @Success 201 {object} response.Envelope
// @Router /queries/{id}/answers [post]
func (h *QueryHandler) AddAnswer(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AddAnswerRequest
	if !bindJSON(c, &req, "invalid answer payload") {
		return
	}
	view, err := h.service.AddAnswer(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// ProposeSolution godoc
// @Summary Propose the solution for admin review
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.ProposeSolutionRequest true "Solution"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /queries/{id}/solution [post]
func (h *QueryHandler) ProposeSolution(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ProposeSolutionRequest
	if !bindJSON(c, &req, "invalid solution payload") {
		return
	}
	view, err := h.service.ProposeSolution(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ReviewSolution godoc
// @Summary Approve or reject the current solution
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.ReviewSolutionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /queries/{id}/review [post]
func (h *QueryHandler) ReviewSolution(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewSolutionRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	view, err := h.service.ReviewSolution(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Publish godoc
// @Summary Publish an approved query to the knowledge base
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.PublishRequest false "Optional entry fields"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /queries/{id}/publish [post]
func (h *QueryHandler) Publish(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.PublishRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, "invalid publish payload") {
			return
		}
	}
	entry, err := h.service.Publish(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// AddComment godoc
// @Summary Comment on a query
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path string true "Query ID"
// @Param payload body dto.AddCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /queries/{id}/comments [post]
func (h *QueryHandler) AddComment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AddCommentRequest
	if !bindJSON(c, &req, "invalid comment payload") {
		return
	}
	view, err := h.service.AddComment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}
