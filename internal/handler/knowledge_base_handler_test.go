package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/service"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

type kbServiceMock struct {
	view       *dto.KnowledgeBaseView
	file       *service.ExportedFile
	err        error
	lastParams dto.KnowledgeBaseListParams
	lastFormat service.ExportFormat
	lastRating dto.RateKnowledgeBaseRequest
}

func (m *kbServiceMock) List(ctx context.Context, params dto.KnowledgeBaseListParams) ([]*dto.KnowledgeBaseView, *models.Pagination, error) {
	m.lastParams = params
	return []*dto.KnowledgeBaseView{m.view}, models.NewPagination(params.Page, params.PageSize, 1), m.err
}

func (m *kbServiceMock) Get(ctx context.Context, id string) (*dto.KnowledgeBaseView, error) {
	return m.view, m.err
}

func (m *kbServiceMock) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateKnowledgeBaseRequest) (*dto.KnowledgeBaseView, error) {
	return m.view, m.err
}

func (m *kbServiceMock) Rate(ctx context.Context, actor models.Actor, id string, req dto.RateKnowledgeBaseRequest) (*dto.KnowledgeBaseView, error) {
	m.lastRating = req
	return m.view, m.err
}

func (m *kbServiceMock) Export(ctx context.Context, id string, format service.ExportFormat) (*service.ExportedFile, error) {
	m.lastFormat = format
	return m.file, m.err
}

func TestKnowledgeBaseHandlerListFilters(t *testing.T) {
	svc := &kbServiceMock{view: dto.NewKnowledgeBaseView(&models.KnowledgeBaseEntry{ID: "kb-1"})}
	h := NewKnowledgeBaseHandler(svc)

	c, w := newTestContext(http.MethodGet, "/knowledge-base?featured=true&tag=Pump&organization=ALL", "", managerClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastParams.Featured)
	assert.True(t, *svc.lastParams.Featured)
	assert.Equal(t, "Pump", svc.lastParams.Tag)
	assert.Equal(t, models.OrgAll, svc.lastParams.Organization)
	assert.Equal(t, 20, svc.lastParams.PageSize)
}

func TestKnowledgeBaseHandlerRateConflict(t *testing.T) {
	svc := &kbServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "you have already rated this entry")}
	h := NewKnowledgeBaseHandler(svc)

	c, w := newTestContext(http.MethodPost, "/knowledge-base/kb-1/ratings", `{"rating":4}`, managerClaims)
	c.Params = gin.Params{{Key: "id", Value: "kb-1"}}
	h.Rate(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 4, svc.lastRating.Rating)
}

func TestKnowledgeBaseHandlerExportStreamsFile(t *testing.T) {
	svc := &kbServiceMock{file: &service.ExportedFile{
		Filename:    "knowledge-base-kb-1.csv",
		ContentType: "text/csv",
		Data:        []byte("Title\nPump\n"),
	}}
	h := NewKnowledgeBaseHandler(svc)

	c, w := newTestContext(http.MethodGet, "/knowledge-base/kb-1/export?format=csv", "", managerClaims)
	c.Params = gin.Params{{Key: "id", Value: "kb-1"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportCSV, svc.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "knowledge-base-kb-1.csv")
	assert.Equal(t, "Title\nPump\n", w.Body.String())
}

func TestHealthHandlerReady(t *testing.T) {
	healthy := NewHealthHandler(nil, map[string]ReadinessCheck{
		"store": func(ctx context.Context) error { return nil },
	})
	c, w := newTestContext(http.MethodGet, "/ready", "", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewHealthHandler(nil, map[string]ReadinessCheck{
		"store": func(ctx context.Context) error { return context.DeadlineExceeded },
	})
	c, w = newTestContext(http.MethodGet, "/ready", "", nil)
	down.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")

	c, w = newTestContext(http.MethodGet, "/metrics", "", nil)
	down.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
