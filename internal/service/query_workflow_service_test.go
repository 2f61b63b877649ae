package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/repository"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
	"github.com/noah-isme/query-kb-api/pkg/jobs"
)

// memQueryStore keeps serialised copies so unsaved mutations never leak between calls.
type memQueryStore struct {
	mu      sync.Mutex
	queries map[string][]byte
	views   map[string]int64
	entries map[string]*models.KnowledgeBaseEntry
	sources map[string]string

	publishErr error
	saves      int
}

func newMemQueryStore() *memQueryStore {
	return &memQueryStore{
		queries: map[string][]byte{},
		views:   map[string]int64{},
		entries: map[string]*models.KnowledgeBaseEntry{},
		sources: map[string]string{},
	}
}

func (m *memQueryStore) Create(ctx context.Context, q *models.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[q.ID]; ok {
		return repository.ErrDuplicate
	}
	q.Revision = 1
	m.put(q)
	return nil
}

func (m *memQueryStore) put(q *models.Query) {
	raw, _ := json.Marshal(q)
	m.queries[q.ID] = raw
}

func (m *memQueryStore) GetByID(ctx context.Context, id string) (*models.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.queries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var q models.Query
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	q.Views = m.views[id]
	return &q, nil
}

func (m *memQueryStore) currentRevision(id string) (int, error) {
	raw, ok := m.queries[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	var stored models.Query
	if err := json.Unmarshal(raw, &stored); err != nil {
		return 0, err
	}
	return stored.Revision, nil
}

func (m *memQueryStore) Save(ctx context.Context, q *models.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(q)
}

func (m *memQueryStore) save(q *models.Query) error {
	rev, err := m.currentRevision(q.ID)
	if err != nil {
		return err
	}
	if rev != q.Revision {
		return repository.ErrRevisionConflict
	}
	q.Revision++
	m.put(q)
	m.saves++
	return nil
}

func (m *memQueryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.queries, id)
	delete(m.views, id)
	return nil
}

func (m *memQueryStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[id]; !ok {
		return 0, repository.ErrNotFound
	}
	m.views[id]++
	return m.views[id], nil
}

func (m *memQueryStore) List(ctx context.Context, filter models.QueryFilter) ([]models.Query, int, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.queries))
	for id := range m.queries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make([]models.Query, 0, len(ids))
	for _, id := range ids {
		q, err := m.GetByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if filter.Organization != "" && q.Organization != filter.Organization {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (m *memQueryStore) CountByStatus(ctx context.Context) (map[models.QueryStatus]int, error) {
	items, _, err := m.List(ctx, models.QueryFilter{})
	if err != nil {
		return nil, err
	}
	out := map[models.QueryStatus]int{}
	for _, q := range items {
		out[q.Status]++
	}
	return out, nil
}

func (m *memQueryStore) CountByOrganization(ctx context.Context) (map[models.Organization]int, error) {
	items, _, err := m.List(ctx, models.QueryFilter{})
	if err != nil {
		return nil, err
	}
	out := map[models.Organization]int{}
	for _, q := range items {
		out[q.Organization]++
	}
	return out, nil
}

func (m *memQueryStore) Publish(ctx context.Context, q *models.Query, entry *models.KnowledgeBaseEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	if _, ok := m.sources[entry.Workflow.SourceQuery]; ok {
		return repository.ErrDuplicate
	}
	revision := q.Revision
	if err := m.save(q); err != nil {
		q.Revision = revision
		return err
	}
	entry.Revision = 1
	copied := *entry
	m.entries[entry.ID] = &copied
	m.sources[entry.Workflow.SourceQuery] = entry.ID
	return nil
}

type userDirectoryStub struct {
	users map[string]models.User
	calls int
}

func (s *userDirectoryStub) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.calls++
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSink) Publish(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) snapshot() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.sent...)
}

var (
	salesActor   = models.Actor{ID: "sales-1", Role: models.RoleSalesExecutive}
	otherSales   = models.Actor{ID: "sales-2", Role: models.RoleSalesExecutive}
	managerActor = models.Actor{ID: "mgr-1", Role: models.RoleManager}
	adminActor   = models.Actor{ID: "adm-1", Role: models.RoleAdmin}
)

type workflowFixture struct {
	svc   *QueryWorkflowService
	store *memQueryStore
	users *userDirectoryStub
	sink  *recordingSink
	notif *NotificationService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	store := newMemQueryStore()
	users := &userDirectoryStub{users: map[string]models.User{
		"sales-1": {ID: "sales-1", Name: "Sam Sales", Email: "sam@example.org", Role: models.RoleSalesExecutive},
		"mgr-1":   {ID: "mgr-1", Name: "Mia Manager", Email: "mia@example.org", Role: models.RoleManager},
		"adm-1":   {ID: "adm-1", Name: "Ada Admin", Email: "ada@example.org", Role: models.RoleAdmin},
	}}
	sink := &recordingSink{}
	notif := NewNotificationService(sink, nil, zap.NewNop(), jobs.QueueConfig{Workers: 1, BufferSize: 32})
	notif.Start(context.Background())
	t.Cleanup(func() { _ = notif.Stop(context.Background()) })

	seq := 0
	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	svc := NewQueryWorkflowService(store, NewActorDirectory(users, 16, time.Minute, nil), nil, zap.NewNop(),
		WithNotifier(notif),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return &workflowFixture{svc: svc, store: store, users: users, sink: sink, notif: notif}
}

func validCreateRequest() dto.CreateQueryRequest {
	return dto.CreateQueryRequest{
		Title:        "Pump failure at site",
		Description:  "Water pump stops after an hour of use",
		Organization: models.OrgJWP,
		Tags:         []string{"Pump", "pump", "Field"},
	}
}

func requireAppError(t *testing.T, err error, template *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, template.Code, appErr.Code, appErr.Message)
	assert.Equal(t, template.Status, appErr.Status)
	return appErr
}

func TestQueryWorkflowEndToEnd(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusNew, created.Status)
	assert.Equal(t, []string{"pump", "field"}, created.Tags)
	require.NotNil(t, created.SubmittedBy)
	assert.Equal(t, "Sam Sales", created.SubmittedBy.Name)

	answered, err := f.svc.AddAnswer(ctx, managerActor, created.ID, dto.AddAnswerRequest{Content: "check the fuse"})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusUnderDiscussion, answered.Status)
	assert.Equal(t, "Mia Manager", answered.Answers[0].ProvidedBy.Name)

	proposed, err := f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix X"})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusSolutionProvided, proposed.Status)
	assert.Equal(t, models.StageAdminReview, proposed.Workflow.CurrentStage)

	rejected, err := f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{
		Status:          models.ReviewRejected,
		RejectionReason: "does not cover the float switch",
	})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusRejected, rejected.Status)
	assert.Equal(t, models.StageManagerReview, rejected.Workflow.CurrentStage)
	assert.Equal(t, "fix X", rejected.Solution.Content)

	reproposed, err := f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix X v2"})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusSolutionProvided, reproposed.Status)
	assert.Equal(t, models.ReviewPending, reproposed.AdminReview.Status)

	reviewed, err := f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{
		Status:         models.ReviewApproved,
		EditedSolution: "fix X v2 edited",
	})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusApproved, reviewed.Status)
	assert.Equal(t, "fix X v2 edited", reviewed.Solution.Content)
	assert.Equal(t, "fix X", reviewed.AdminReview.OriginalSolution)
	assert.Equal(t, "Ada Admin", reviewed.AdminReview.ReviewedBy.Name)

	entry, err := f.svc.Publish(ctx, adminActor, created.ID, dto.PublishRequest{Summary: "Pump fix"})
	require.NoError(t, err)
	assert.Equal(t, "fix X v2 edited", entry.Content)
	assert.Equal(t, created.ID, entry.Workflow.SourceQuery)
	assert.Equal(t, "mgr-1", entry.Workflow.SolutionProvider)
	assert.Equal(t, "fix X", entry.Workflow.OriginalSolution)

	final, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusPublished, final.Status)
	require.NotNil(t, final.KnowledgeBaseEntry)
	assert.Equal(t, entry.ID, *final.KnowledgeBaseEntry)
	assert.Len(t, f.store.entries, 1)

	_, err = f.svc.Publish(ctx, adminActor, created.ID, dto.PublishRequest{})
	requireAppError(t, err, appErrors.ErrInvalidState)
	assert.Len(t, f.store.entries, 1)
}

func TestSubmitReturnsFieldDetails(t *testing.T) {
	f := newWorkflowFixture(t)
	req := validCreateRequest()
	req.Title = "abc"
	req.Organization = "NASA"

	_, err := f.svc.Submit(context.Background(), salesActor, req)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "must be at least 5 characters", appErr.Details["title"])
	assert.Equal(t, "is not a recognised organization", appErr.Details["organization"])
	assert.Empty(t, f.store.queries)
}

func TestDeleteForbiddenForOtherSalesExecutive(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	err = f.svc.Delete(ctx, otherSales, created.ID)
	requireAppError(t, err, appErrors.ErrForbidden)
	assert.Contains(t, f.store.queries, created.ID)

	require.NoError(t, f.svc.Delete(ctx, managerActor, created.ID))
	assert.NotContains(t, f.store.queries, created.ID)

	err = f.svc.Delete(ctx, managerActor, created.ID)
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestDeletePublishedQueryIsInvalidState(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)
	_, err = f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix"})
	require.NoError(t, err)
	_, err = f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{Status: models.ReviewApproved})
	require.NoError(t, err)
	entry, err := f.svc.Publish(ctx, adminActor, created.ID, dto.PublishRequest{})
	require.NoError(t, err)

	for _, actor := range []models.Actor{salesActor, managerActor} {
		err = f.svc.Delete(ctx, actor, created.ID)
		requireAppError(t, err, appErrors.ErrInvalidState)
	}

	assert.Contains(t, f.store.queries, created.ID)
	assert.Contains(t, f.store.entries, entry.ID)
	loaded, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusPublished, loaded.Status)
}

func TestRolePermissions(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	_, err = f.svc.ProposeSolution(ctx, salesActor, created.ID, dto.ProposeSolutionRequest{Content: "mine"})
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = f.svc.AddComment(ctx, otherSales, created.ID, dto.AddCommentRequest{Message: "hi"})
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix"})
	require.NoError(t, err)

	_, err = f.svc.ReviewSolution(ctx, managerActor, created.ID, dto.ReviewSolutionRequest{Status: models.ReviewApproved})
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Publish(ctx, managerActor, created.ID, dto.PublishRequest{})
	requireAppError(t, err, appErrors.ErrForbidden)

	commented, err := f.svc.AddComment(ctx, salesActor, created.ID, dto.AddCommentRequest{Message: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusSolutionProvided, commented.Status)
	assert.Equal(t, 1, commented.ActionCounts.Comments)
}

func TestReviewWithoutSolutionIsInvalidState(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	_, err = f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{Status: models.ReviewApproved})
	requireAppError(t, err, appErrors.ErrInvalidState)

	_, err = f.svc.Publish(ctx, adminActor, created.ID, dto.PublishRequest{})
	requireAppError(t, err, appErrors.ErrInvalidState)
	assert.Empty(t, f.store.entries)
}

func TestSaveRevisionConflictReturnsConflict(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	stale, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.svc.AddAnswer(ctx, managerActor, created.ID, dto.AddAnswerRequest{Content: "first"})
	require.NoError(t, err)

	require.NoError(t, stale.AddAnswer(models.Answer{Content: "stale"}, time.Now()))
	err = f.svc.save(ctx, stale)
	appErr := requireAppError(t, err, appErrors.ErrConflict)
	assert.Contains(t, appErr.Message, "modified concurrently")

	current, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, current.Answers, 1)
	assert.Equal(t, "first", current.Answers[0].Content)
}

func TestPublishDuplicateEntryIsConflict(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)
	_, err = f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix"})
	require.NoError(t, err)
	_, err = f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{Status: models.ReviewApproved})
	require.NoError(t, err)

	f.store.publishErr = repository.ErrDuplicate
	_, err = f.svc.Publish(ctx, adminActor, created.ID, dto.PublishRequest{})
	requireAppError(t, err, appErrors.ErrConflict)

	q, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusApproved, q.Status)
	assert.Nil(t, q.KnowledgeBaseEntry)
}

func TestGetIncrementsViews(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	first, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	second, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Views)
	assert.Equal(t, int64(2), second.Views)
	assert.Equal(t, 1, second.Revision, "reads must not bump the revision")

	_, err = f.svc.Get(ctx, "missing")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestUpdateRequiresFields(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, salesActor, created.ID, dto.UpdateQueryRequest{})
	requireAppError(t, err, appErrors.ErrValidation)

	cause := "  worn bearing "
	updated, err := f.svc.Update(ctx, salesActor, created.ID, dto.UpdateQueryRequest{Cause: &cause})
	require.NoError(t, err)
	assert.Equal(t, "worn bearing", updated.Cause)
	assert.Equal(t, models.QueryStatusNew, updated.Status)
	assert.Equal(t, 2, updated.Revision)
}

func TestListAndStats(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)
	req := validCreateRequest()
	req.Organization = models.OrgKhushii
	second, err := f.svc.Submit(ctx, salesActor, req)
	require.NoError(t, err)
	_, err = f.svc.AddAnswer(ctx, managerActor, second.ID, dto.AddAnswerRequest{Content: "looking"})
	require.NoError(t, err)

	items, page, err := f.svc.List(ctx, dto.QueryListParams{Organization: models.OrgKhushii})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sam Sales", items[0].SubmittedBy.Name)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)

	_, _, err = f.svc.List(ctx, dto.QueryListParams{Status: []models.QueryStatus{"bogus"}})
	requireAppError(t, err, appErrors.ErrValidation)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.QueryStatusNew])
	assert.Equal(t, 1, stats.ByStatus[models.QueryStatusUnderDiscussion])
	assert.Equal(t, 1, stats.ByOrganization[models.OrgJWP])
}

func TestNotificationsSkipActingUser(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	created, err := f.svc.Submit(ctx, salesActor, validCreateRequest())
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, salesActor, created.ID, dto.AddCommentRequest{Message: "note to self"})
	require.NoError(t, err)
	_, err = f.svc.ProposeSolution(ctx, managerActor, created.ID, dto.ProposeSolutionRequest{Content: "fix"})
	require.NoError(t, err)
	_, err = f.svc.ReviewSolution(ctx, adminActor, created.ID, dto.ReviewSolutionRequest{
		Status:          models.ReviewRejected,
		RejectionReason: "too vague",
	})
	require.NoError(t, err)

	require.NoError(t, f.notif.Stop(ctx))
	sent := f.sink.snapshot()

	types := make(map[models.NotificationType][]string)
	for _, n := range sent {
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, created.ID, n.RelatedQuery)
		types[n.Type] = append(types[n.Type], n.Recipient)
	}
	assert.Equal(t, []string{models.ManagersRecipient}, types[models.NotificationNewQuerySubmitted])
	assert.NotContains(t, types, models.NotificationQueryCommented)
	assert.Equal(t, []string{"sales-1"}, types[models.NotificationSolutionProvided])
	assert.ElementsMatch(t, []string{"sales-1", "mgr-1"}, types[models.NotificationSolutionRejected])
}

func TestActorDirectoryCachesAndDegrades(t *testing.T) {
	users := &userDirectoryStub{users: map[string]models.User{
		"u-1": {ID: "u-1", Name: "One"},
	}}
	dir := NewActorDirectory(users, 4, time.Minute, nil)
	ctx := context.Background()

	first := dir.Resolve(ctx, []string{"u-1", "ghost"})
	assert.Equal(t, "One", first["u-1"].Name)
	assert.Equal(t, dto.ActorView{ID: "ghost"}, first["ghost"])

	second := dir.Resolve(ctx, []string{"u-1"})
	assert.Equal(t, "One", second["u-1"].Name)
	assert.Equal(t, 1, users.calls)
}
