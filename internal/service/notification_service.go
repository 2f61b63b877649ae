package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/pkg/jobs"
	"github.com/noah-isme/query-kb-api/pkg/middleware/requestid"
)

const notificationJobType = "notification"

// NotificationSink delivers a single notification.
type NotificationSink interface {
	Publish(ctx context.Context, n models.Notification) error
}

// LogSink writes notifications to the application log when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Publish logs the notification.
func (s *LogSink) Publish(_ context.Context, n models.Notification) error {
	s.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("recipient", n.Recipient),
		zap.String("type", string(n.Type)),
		zap.String("related_query", n.RelatedQuery),
		zap.String("related_kb", n.RelatedKnowledgeBase),
		zap.String("priority", string(n.Priority)),
	)
	return nil
}

// NotificationService emits workflow notifications asynchronously through a worker queue.
type NotificationService struct {
	sink    NotificationSink
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService wires the sink behind a jobs queue. Call Start before use.
func NewNotificationService(sink NotificationSink, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	svc := &NotificationService{
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, cfg)
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains pending deliveries.
func (s *NotificationService) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.queue.Stop(ctx)
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return errors.New("unexpected notification payload")
	}
	if err := s.sink.Publish(ctx, n); err != nil {
		s.metrics.RecordNotification(n.Type, "failed")
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	s.metrics.RecordNotification(n.Type, "delivered")
	return nil
}

// notify enqueues n unless it would reach the acting user. Delivery problems are logged only.
func (s *NotificationService) notify(ctx context.Context, actorID string, n models.Notification) {
	if s == nil || n.Recipient == "" || n.Recipient == actorID {
		return
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	n.RequestID = requestid.FromContext(ctx)
	if err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n}); err != nil {
		s.metrics.RecordNotification(n.Type, "dropped")
		s.logger.Warn("notification dropped",
			zap.String("type", string(n.Type)),
			zap.String("recipient", n.Recipient),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordNotification(n.Type, "queued")
}

// QuerySubmitted tells managers a new query is waiting.
func (s *NotificationService) QuerySubmitted(ctx context.Context, actor models.Actor, q *models.Query) {
	s.notify(ctx, actor.ID, models.Notification{
		Recipient:      models.ManagersRecipient,
		Type:           models.NotificationNewQuerySubmitted,
		Title:          "New query submitted",
		Message:        fmt.Sprintf("%s (%s)", q.Title, q.Organization),
		RelatedQuery:   q.ID,
		ActionRequired: true,
		Priority:       models.PriorityMedium,
	})
}

// QueryAnswered tells the submitter the discussion moved.
func (s *NotificationService) QueryAnswered(ctx context.Context, actor models.Actor, q *models.Query) {
	s.notify(ctx, actor.ID, models.Notification{
		Recipient:    q.SubmittedBy,
		Type:         models.NotificationQueryAnswered,
		Title:        "New answer on your query",
		Message:      q.Title,
		RelatedQuery: q.ID,
		Priority:     models.PriorityLow,
	})
}

// QueryCommented tells the submitter about a new comment.
func (s *NotificationService) QueryCommented(ctx context.Context, actor models.Actor, q *models.Query) {
	s.notify(ctx, actor.ID, models.Notification{
		Recipient:    q.SubmittedBy,
		Type:         models.NotificationQueryCommented,
		Title:        "New comment on your query",
		Message:      q.Title,
		RelatedQuery: q.ID,
		Priority:     models.PriorityLow,
	})
}

// SolutionProvided tells the submitter a solution is awaiting review.
func (s *NotificationService) SolutionProvided(ctx context.Context, actor models.Actor, q *models.Query) {
	s.notify(ctx, actor.ID, models.Notification{
		Recipient:    q.SubmittedBy,
		Type:         models.NotificationSolutionProvided,
		Title:        "Solution proposed",
		Message:      fmt.Sprintf("A solution for %q is awaiting admin review", q.Title),
		RelatedQuery: q.ID,
		Priority:     models.PriorityMedium,
	})
}

// SolutionReviewed tells the submitter and the solution author about the decision.
func (s *NotificationService) SolutionReviewed(ctx context.Context, actor models.Actor, q *models.Query) {
	if q.AdminReview == nil {
		return
	}
	n := models.Notification{
		Type:         models.NotificationSolutionApproved,
		Title:        "Solution approved",
		Message:      fmt.Sprintf("The solution for %q was approved", q.Title),
		RelatedQuery: q.ID,
		Priority:     models.PriorityHigh,
	}
	if q.AdminReview.Status == models.ReviewRejected {
		n.Type = models.NotificationSolutionRejected
		n.Title = "Solution rejected"
		n.Message = fmt.Sprintf("The solution for %q was rejected", q.Title)
		if q.AdminReview.RejectionReason != "" {
			n.Message += ": " + q.AdminReview.RejectionReason
		}
		n.ActionRequired = true
	}

	recipients := []string{q.SubmittedBy}
	if q.Solution != nil && q.Solution.ProvidedBy != q.SubmittedBy {
		recipients = append(recipients, q.Solution.ProvidedBy)
	}
	for _, r := range recipients {
		n.Recipient = r
		s.notify(ctx, actor.ID, n)
	}
}

// KnowledgeBaseUpdated tells the submitter their query was published.
func (s *NotificationService) KnowledgeBaseUpdated(ctx context.Context, actor models.Actor, q *models.Query, entry *models.KnowledgeBaseEntry) {
	s.notify(ctx, actor.ID, models.Notification{
		Recipient:            q.SubmittedBy,
		Type:                 models.NotificationKnowledgeBaseUpdated,
		Title:                "Published to knowledge base",
		Message:              entry.Title,
		RelatedQuery:         q.ID,
		RelatedKnowledgeBase: entry.ID,
		Priority:             models.PriorityLow,
	})
}
