package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/repository"
	"github.com/noah-isme/query-kb-api/pkg/export"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

// KnowledgeBaseStore persists knowledge base entries.
type KnowledgeBaseStore interface {
	GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error)
	Save(ctx context.Context, entry *models.KnowledgeBaseEntry) error
	RecordView(ctx context.Context, id string, at time.Time) (int64, error)
	List(ctx context.Context, filter models.KnowledgeBaseFilter) ([]models.KnowledgeBaseEntry, int, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportFormat names a supported knowledge base export encoding.
type ExportFormat string

const (
	ExportPDF ExportFormat = "pdf"
	ExportCSV ExportFormat = "csv"
)

// ExportedFile is a rendered knowledge base entry ready to stream.
type ExportedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// KnowledgeBaseService serves reads, admin edits, ratings and exports of published entries.
type KnowledgeBaseService struct {
	entries   KnowledgeBaseStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	csv       documentRenderer
	pdf       documentRenderer
	now       func() time.Time
}

// NewKnowledgeBaseService constructs the service.
func NewKnowledgeBaseService(entries KnowledgeBaseStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *KnowledgeBaseService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBaseService{
		entries:   entries,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns a page of entries.
func (s *KnowledgeBaseService) List(ctx context.Context, params dto.KnowledgeBaseListParams) ([]*dto.KnowledgeBaseView, *models.Pagination, error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}
	items, total, err := s.entries.List(ctx, models.KnowledgeBaseFilter{
		Organization: params.Organization,
		Status:       params.Status,
		Featured:     params.Featured,
		Tag:          params.Tag,
		Search:       params.Search,
		Page:         params.Page,
		PageSize:     params.PageSize,
	})
	if err != nil {
		return nil, nil, storeError(err, "knowledge base entry", "list knowledge base entries")
	}
	views := make([]*dto.KnowledgeBaseView, 0, len(items))
	for i := range items {
		views = append(views, dto.NewKnowledgeBaseView(&items[i]))
	}
	return views, models.NewPagination(params.Page, params.PageSize, total), nil
}

// Get returns an entry and records the access.
func (s *KnowledgeBaseService) Get(ctx context.Context, id string) (view *dto.KnowledgeBaseView, err error) {
	ctx, span := s.start(ctx, "Get", id)
	defer func() { endSpan(span, err) }()

	now := s.now()
	views, err := s.entries.RecordView(ctx, id, now)
	if err != nil {
		return nil, storeError(err, "knowledge base entry", "record knowledge base view")
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.Metrics.Views = views
	entry.Metrics.LastAccessed = &now
	return dto.NewKnowledgeBaseView(entry), nil
}

// Update edits operational fields. Provenance is immutable.
func (s *KnowledgeBaseService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateKnowledgeBaseRequest) (view *dto.KnowledgeBaseView, err error) {
	ctx, span := s.start(ctx, "Update", id)
	defer func() { endSpan(span, err) }()

	if req.Empty() {
		return nil, emptyUpdateError()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid knowledge base update")
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may edit knowledge base entries")
	}

	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.ApplyEdit(models.KnowledgeBaseEdit{
		Title:             req.Title,
		Content:           req.Content,
		Summary:           req.Summary,
		Organization:      req.Organization,
		Tags:              req.Tags,
		SearchKeywords:    req.SearchKeywords,
		AlternativeTitles: req.AlternativeTitles,
		Status:            req.Status,
		Featured:          req.Featured,
	}, actor.ID, s.now())
	if err := s.save(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("knowledge base entry updated",
		zap.String("kb_id", entry.ID),
		zap.Int("version", entry.Version),
		zap.String("actor_id", actor.ID),
	)
	return dto.NewKnowledgeBaseView(entry), nil
}

// Rate records the actor's single rating for an entry.
func (s *KnowledgeBaseService) Rate(ctx context.Context, actor models.Actor, id string, req dto.RateKnowledgeBaseRequest) (view *dto.KnowledgeBaseView, err error) {
	ctx, span := s.start(ctx, "Rate", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rating payload")
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.AddRating(models.Rating{
		User:    actor.ID,
		Rating:  req.Rating,
		Comment: strings.TrimSpace(req.Comment),
	}, s.now()); err != nil {
		if errors.Is(err, models.ErrAlreadyRated) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you have already rated this entry")
		}
		return nil, lifecycleError(err)
	}
	if err := s.save(ctx, entry); err != nil {
		return nil, err
	}
	return dto.NewKnowledgeBaseView(entry), nil
}

// Export renders one entry as PDF or CSV.
func (s *KnowledgeBaseService) Export(ctx context.Context, id string, format ExportFormat) (file *ExportedFile, err error) {
	ctx, span := s.start(ctx, "Export", id)
	defer func() { endSpan(span, err) }()

	var (
		renderer    documentRenderer
		contentType string
	)
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportPDF, "":
		format, renderer, contentType = ExportPDF, s.pdf, "application/pdf"
	case ExportCSV:
		format, renderer, contentType = ExportCSV, s.csv, "text/csv"
	default:
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported export format", map[string]string{
			"format": "must be one of: pdf, csv",
		})
	}

	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := renderer.Render(entryDocument(entry))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("knowledge-base-%s.%s", entry.ID, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func entryDocument(entry *models.KnowledgeBaseEntry) export.Document {
	fields := []export.Field{
		{Label: "ID", Value: entry.ID},
		{Label: "Organization", Value: string(entry.Organization)},
		{Label: "Status", Value: string(entry.Status)},
		{Label: "Version", Value: fmt.Sprintf("%d", entry.Version)},
		{Label: "Tags", Value: strings.Join(entry.Tags, ", ")},
		{Label: "Summary", Value: entry.Summary},
		{Label: "Average Rating", Value: fmt.Sprintf("%.2f", entry.AverageRating())},
		{Label: "Source Query", Value: entry.Workflow.SourceQuery},
		{Label: "Published At", Value: entry.Workflow.PublishedAt.Format(time.RFC3339)},
	}
	return export.Document{
		Title:     entry.Title,
		Fields:    fields,
		BodyLabel: "Content",
		Body:      entry.Content,
	}
}

func (s *KnowledgeBaseService) load(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error) {
	start := time.Now()
	entry, err := s.entries.GetByID(ctx, id)
	s.metrics.ObserveStoreOperation("kb_get", time.Since(start))
	if err != nil {
		return nil, storeError(err, "knowledge base entry", "load knowledge base entry")
	}
	return entry, nil
}

func (s *KnowledgeBaseService) save(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	start := time.Now()
	err := s.entries.Save(ctx, entry)
	s.metrics.ObserveStoreOperation("kb_save", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			s.metrics.RecordConflict("knowledge_base")
		}
		return storeError(err, "knowledge base entry", "save knowledge base entry")
	}
	return nil
}

func (s *KnowledgeBaseService) start(ctx context.Context, operation, id string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "KnowledgeBase."+operation)
	span.SetAttributes(attribute.String("kb.id", id))
	return ctx, span
}
