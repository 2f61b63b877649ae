package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/repository"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

const (
	queryStatsCacheKey     = "stats:queries"
	queryStatsCachePattern = "stats:queries*"
	tracerName             = "github.com/noah-isme/query-kb-api/internal/service"
)

// QueryStore persists query aggregates.
type QueryStore interface {
	Create(ctx context.Context, q *models.Query) error
	GetByID(ctx context.Context, id string) (*models.Query, error)
	Save(ctx context.Context, q *models.Query) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	List(ctx context.Context, filter models.QueryFilter) ([]models.Query, int, error)
	CountByStatus(ctx context.Context) (map[models.QueryStatus]int, error)
	CountByOrganization(ctx context.Context) (map[models.Organization]int, error)
	Publish(ctx context.Context, q *models.Query, entry *models.KnowledgeBaseEntry) error
}

// QueryWorkflowOption customises optional collaborators.
type QueryWorkflowOption func(*QueryWorkflowService)

// WithNotifier attaches the notification emitter.
func WithNotifier(n *NotificationService) QueryWorkflowOption {
	return func(s *QueryWorkflowService) {
		s.notifier = n
	}
}

// WithStatsCache caches the stats aggregation for ttl.
func WithStatsCache(cache *CacheService, ttl time.Duration) QueryWorkflowOption {
	return func(s *QueryWorkflowService) {
		s.cache = cache
		if ttl > 0 {
			s.statsTTL = ttl
		}
	}
}

// WithMetrics records workflow counters.
func WithMetrics(m *MetricsService) QueryWorkflowOption {
	return func(s *QueryWorkflowService) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) QueryWorkflowOption {
	return func(s *QueryWorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides id generation for queries and knowledge base entries.
func WithIDGenerator(gen func() string) QueryWorkflowOption {
	return func(s *QueryWorkflowService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// QueryWorkflowService drives queries from submission through review to publication.
type QueryWorkflowService struct {
	queries   QueryStore
	actors    *ActorDirectory
	notifier  *NotificationService
	cache     *CacheService
	statsTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewQueryWorkflowService constructs the service with defaults.
func NewQueryWorkflowService(queries QueryStore, actors *ActorDirectory, validate *validator.Validate, logger *zap.Logger, opts ...QueryWorkflowOption) *QueryWorkflowService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if actors == nil {
		actors = NewActorDirectory(nil, 0, 0, logger)
	}
	s := &QueryWorkflowService{
		queries:   queries,
		actors:    actors,
		statsTTL:  5 * time.Minute,
		validator: validate,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a new query owned by the actor.
func (s *QueryWorkflowService) Submit(ctx context.Context, actor models.Actor, req dto.CreateQueryRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "Submit", "")
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid query payload")
	}

	org := req.Organization
	q := models.NewQuery(s.newID(), actor.ID, models.QueryFields{
		Title:        &req.Title,
		Description:  &req.Description,
		Organization: &org,
		Cause:        &req.Cause,
		Stage:        &req.Stage,
		Tags:         req.Tags,
	}, s.now())

	start := time.Now()
	err = s.queries.Create(ctx, q)
	s.metrics.ObserveStoreOperation("query_create", time.Since(start))
	if err != nil {
		return nil, storeError(err, "query", "create query")
	}

	s.afterWrite(ctx, "submit", q)
	s.notifier.QuerySubmitted(ctx, actor, q)
	s.logger.Info("query submitted", zap.String("query_id", q.ID), zap.String("actor_id", actor.ID))
	return s.present(ctx, q), nil
}

// Get returns a query and counts the read.
func (s *QueryWorkflowService) Get(ctx context.Context, id string) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "Get", id)
	defer func() { endSpan(span, err) }()

	views, err := s.queries.IncrementViews(ctx, id)
	if err != nil {
		return nil, storeError(err, "query", "record query view")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Views = views
	return s.present(ctx, q), nil
}

// List returns a page of query summaries.
func (s *QueryWorkflowService) List(ctx context.Context, params dto.QueryListParams) ([]dto.QuerySummary, *models.Pagination, error) {
	for _, st := range params.Status {
		if !st.Valid() {
			return nil, nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid query filter", map[string]string{
				"status": "must be a known query status",
			})
		}
	}
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	start := time.Now()
	items, total, err := s.queries.List(ctx, models.QueryFilter{
		Status:       params.Status,
		Organization: params.Organization,
		SubmittedBy:  params.SubmittedBy,
		Search:       params.Search,
		SortBy:       params.SortBy,
		SortOrder:    params.SortOrder,
		Page:         params.Page,
		PageSize:     params.PageSize,
	})
	s.metrics.ObserveStoreOperation("query_list", time.Since(start))
	if err != nil {
		return nil, nil, storeError(err, "query", "list queries")
	}

	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].SubmittedBy)
	}
	actors := actorLookup(s.actors.Resolve(ctx, ids))
	summaries := make([]dto.QuerySummary, 0, len(items))
	for i := range items {
		summaries = append(summaries, presentQuerySummary(&items[i], actors))
	}
	return summaries, models.NewPagination(params.Page, params.PageSize, total), nil
}

// Stats aggregates query counts per status and organization.
func (s *QueryWorkflowService) Stats(ctx context.Context) (*models.QueryStats, error) {
	var cached models.QueryStats
	if hit, _ := s.cache.Get(ctx, queryStatsCacheKey, &cached); hit {
		return &cached, nil
	}

	byStatus, err := s.queries.CountByStatus(ctx)
	if err != nil {
		return nil, storeError(err, "query", "count queries by status")
	}
	byOrg, err := s.queries.CountByOrganization(ctx)
	if err != nil {
		return nil, storeError(err, "query", "count queries by organization")
	}

	stats := &models.QueryStats{ByStatus: byStatus, ByOrganization: byOrg}
	for _, n := range byStatus {
		stats.Total += n
	}
	_ = s.cache.Set(ctx, queryStatsCacheKey, stats, s.statsTTL)
	return stats, nil
}

// Update edits descriptive fields without changing status.
func (s *QueryWorkflowService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateQueryRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "Update", id)
	defer func() { endSpan(span, err) }()

	if req.Empty() {
		return nil, emptyUpdateError()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid query update")
	}

	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, q) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter or a manager may edit this query")
	}

	q.ApplyFields(models.QueryFields{
		Title:        req.Title,
		Description:  req.Description,
		Organization: req.Organization,
		Cause:        req.Cause,
		Stage:        req.Stage,
		Tags:         req.Tags,
	}, s.now())
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "update", q)
	return s.present(ctx, q), nil
}

// Delete removes a query that has not been published.
func (s *QueryWorkflowService) Delete(ctx context.Context, actor models.Actor, id string) (err error) {
	ctx, span := s.start(ctx, "Delete", id)
	defer func() { endSpan(span, err) }()

	q, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, q) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the submitter or a manager may delete this query")
	}
	if err := q.CheckDeletable(); err != nil {
		return lifecycleError(err)
	}
	if err := s.queries.Delete(ctx, id); err != nil {
		return storeError(err, "query", "delete query")
	}
	s.invalidateStats(ctx)
	s.metrics.RecordTransition("delete", q.Status)
	s.logger.Info("query deleted", zap.String("query_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// AddAnswer appends to the discussion log.
func (s *QueryWorkflowService) AddAnswer(ctx context.Context, actor models.Actor, id string, req dto.AddAnswerRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "AddAnswer", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid answer payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, q) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter or a manager may answer this query")
	}

	if err := q.AddAnswer(models.Answer{
		Content:      req.Content,
		ProvidedBy:   actor.ID,
		Helpful:      req.Helpful,
		ManagerNotes: req.ManagerNotes,
	}, s.now()); err != nil {
		return nil, lifecycleError(err)
	}
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "answer", q)
	s.notifier.QueryAnswered(ctx, actor, q)
	return s.present(ctx, q), nil
}

// ProposeSolution replaces the active solution and sends the query to admin review.
func (s *QueryWorkflowService) ProposeSolution(ctx context.Context, actor models.Actor, id string, req dto.ProposeSolutionRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "ProposeSolution", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid solution payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Privileged() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only managers may propose solutions")
	}

	if err := q.ProposeSolution(models.Solution{
		Content:      req.Content,
		ProvidedBy:   actor.ID,
		ManagerNotes: req.ManagerNotes,
	}, s.now()); err != nil {
		return nil, lifecycleError(err)
	}
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "propose_solution", q)
	s.notifier.SolutionProvided(ctx, actor, q)
	return s.present(ctx, q), nil
}

// ReviewSolution records the admin decision on the current solution.
func (s *QueryWorkflowService) ReviewSolution(ctx context.Context, actor models.Actor, id string, req dto.ReviewSolutionRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "ReviewSolution", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid review payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may review solutions")
	}

	if err := q.ReviewSolution(models.Review{
		ReviewerID:      actor.ID,
		Decision:        req.Status,
		EditedSolution:  req.EditedSolution,
		AdminFeedback:   req.AdminFeedback,
		ApprovalReason:  req.ApprovalReason,
		RejectionReason: req.RejectionReason,
	}, s.now()); err != nil {
		return nil, lifecycleError(err)
	}
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "review", q)
	s.notifier.SolutionReviewed(ctx, actor, q)
	return s.present(ctx, q), nil
}

// Publish creates the knowledge base entry for an approved query and links it atomically.
func (s *QueryWorkflowService) Publish(ctx context.Context, actor models.Actor, id string, req dto.PublishRequest) (entry *models.KnowledgeBaseEntry, err error) {
	ctx, span := s.start(ctx, "Publish", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid publish payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may publish to the knowledge base")
	}

	now := s.now()
	entry, err = models.NewKnowledgeBaseEntry(s.newID(), q, models.PublishOptions{
		Title:             req.Title,
		Summary:           req.Summary,
		Tags:              req.Tags,
		SearchKeywords:    req.SearchKeywords,
		AlternativeTitles: req.AlternativeTitles,
	}, actor.ID, now)
	if err != nil {
		return nil, lifecycleError(err)
	}
	if err := q.MarkPublished(entry.ID, now); err != nil {
		return nil, lifecycleError(err)
	}

	start := time.Now()
	err = s.queries.Publish(ctx, q, entry)
	s.metrics.ObserveStoreOperation("query_publish", time.Since(start))
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		return nil, appErrors.Clone(appErrors.ErrConflict, "knowledge base entry already exists for this query")
	case errors.Is(err, repository.ErrRevisionConflict):
		s.metrics.RecordConflict("query")
		return nil, storeError(err, "query", "publish query")
	default:
		return nil, storeError(err, "query", "publish query")
	}
	s.afterWrite(ctx, "publish", q)
	s.notifier.KnowledgeBaseUpdated(ctx, actor, q, entry)
	s.logger.Info("query published",
		zap.String("query_id", q.ID),
		zap.String("kb_id", entry.ID),
		zap.String("actor_id", actor.ID),
	)
	return entry, nil
}

// AddComment appends to the comment log.
func (s *QueryWorkflowService) AddComment(ctx context.Context, actor models.Actor, id string, req dto.AddCommentRequest) (view *dto.QueryView, err error) {
	ctx, span := s.start(ctx, "AddComment", id)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid comment payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, q) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter or a manager may comment on this query")
	}

	if err := q.AddComment(models.Comment{
		User:    actor.ID,
		Message: req.Message,
		Type:    req.Type,
	}, s.now()); err != nil {
		return nil, lifecycleError(err)
	}
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "comment", q)
	s.notifier.QueryCommented(ctx, actor, q)
	return s.present(ctx, q), nil
}

func canModify(actor models.Actor, q *models.Query) bool {
	return q.IsSubmitter(actor.ID) || actor.Role.Privileged()
}

func (s *QueryWorkflowService) load(ctx context.Context, id string) (*models.Query, error) {
	start := time.Now()
	q, err := s.queries.GetByID(ctx, id)
	s.metrics.ObserveStoreOperation("query_get", time.Since(start))
	if err != nil {
		return nil, storeError(err, "query", "load query")
	}
	return q, nil
}

func (s *QueryWorkflowService) save(ctx context.Context, q *models.Query) error {
	start := time.Now()
	err := s.queries.Save(ctx, q)
	s.metrics.ObserveStoreOperation("query_save", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			s.metrics.RecordConflict("query")
			s.logger.Warn("query revision conflict", zap.String("query_id", q.ID), zap.Int("revision", q.Revision))
		}
		return storeError(err, "query", "save query")
	}
	return nil
}

func (s *QueryWorkflowService) afterWrite(ctx context.Context, operation string, q *models.Query) {
	s.metrics.RecordTransition(operation, q.Status)
	s.invalidateStats(ctx)
}

func (s *QueryWorkflowService) invalidateStats(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, queryStatsCachePattern)
}

func (s *QueryWorkflowService) present(ctx context.Context, q *models.Query) *dto.QueryView {
	return presentQuery(q, actorLookup(s.actors.Resolve(ctx, q.ActorIDs())))
}

func (s *QueryWorkflowService) start(ctx context.Context, operation, queryID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "QueryWorkflow."+operation)
	if queryID != "" {
		span.SetAttributes(attribute.String("query.id", queryID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
