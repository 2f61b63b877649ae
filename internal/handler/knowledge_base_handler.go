package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/service"
	"github.com/noah-isme/query-kb-api/pkg/response"
)

type knowledgeBaseService interface {
	List(ctx context.Context, params dto.KnowledgeBaseListParams) ([]*dto.KnowledgeBaseView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.KnowledgeBaseView, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateKnowledgeBaseRequest) (*dto.KnowledgeBaseView, error)
	Rate(ctx context.Context, actor models.Actor, id string, req dto.RateKnowledgeBaseRequest) (*dto.KnowledgeBaseView, error)
	Export(ctx context.Context, id string, format service.ExportFormat) (*service.ExportedFile, error)
}

// KnowledgeBaseHandler exposes published knowledge base entries.
type KnowledgeBaseHandler struct {
	service knowledgeBaseService
}

// NewKnowledgeBaseHandler builds a new handler.
func NewKnowledgeBaseHandler(service knowledgeBaseService) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{service: service}
}

// List godoc
// @Summary List knowledge base entries
// @Tags KnowledgeBase
// @Produce json
// @Param organization query string false "Organization"
// @Param status query string false "Entry status"
// @Param featured query bool false "Featured only"
// @Param tag query string false "Tag"
// @Param search query string false "Free-text search"
// @Param page query int false "Page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Router /knowledge-base [get]
func (h *KnowledgeBaseHandler) List(c *gin.Context) {
	params := dto.KnowledgeBaseListParams{
		Organization: models.Organization(c.Query("organization")),
		Status:       models.KnowledgeBaseStatus(c.Query("status")),
		Featured:     queryBool(c, "featured"),
		Tag:          strings.TrimSpace(c.Query("tag")),
		Search:       strings.TrimSpace(c.Query("search")),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "limit", 20),
	}
	items, pagination, err := h.service.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a knowledge base entry
// @Tags KnowledgeBase
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /knowledge-base/{id} [get]
func (h *KnowledgeBaseHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Edit a knowledge base entry
// @Tags KnowledgeBase
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.UpdateKnowledgeBaseRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /knowledge-base/{id} [put]
func (h *KnowledgeBaseHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateKnowledgeBaseRequest
	if !bindJSON(c, &req, "invalid knowledge base update") {
		return
	}
	view, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Rate godoc
// @Summary Rate a knowledge base entry
// @Tags KnowledgeBase
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.RateKnowledgeBaseRequest true "Rating"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /knowledge-base/{id}/ratings [post]
func (h *KnowledgeBaseHandler) Rate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RateKnowledgeBaseRequest
	if !bindJSON(c, &req, "invalid rating payload") {
		return
	}
	view, err := h.service.Rate(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Export godoc
// @Summary Download a knowledge base entry
// @Tags KnowledgeBase
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Entry ID"
// @Param format query string false "pdf|csv" default(pdf)
// @Success 200 {file} file
// @Router /knowledge-base/{id}/export [get]
func (h *KnowledgeBaseHandler) Export(c *gin.Context) {
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), service.ExportFormat(c.DefaultQuery("format", "pdf")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
