package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/noah-isme/query-kb-api/internal/models"
)

const (
	queriesCollection       = "queries"
	knowledgeBaseCollection = "knowledge_base"
	usersCollection         = "users"
)

// EnsureMongoIndexes creates the indexes the Mongo stores rely on, including the
// one-entry-per-source-query guarantee.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(queriesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "organization", Value: 1}}},
		{Keys: bson.D{{Key: "submittedBy", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create query indexes: %w", err)
	}
	_, err = db.Collection(knowledgeBaseCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "workflow.sourceQuery", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "organization", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create knowledge base indexes: %w", err)
	}
	return nil
}

// documentSet renders v as a $set document, dropping the keys maintained by atomic
// counters so a save never overwrites them.
func documentSet(v interface{}, skip ...string) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	skipped := make(map[string]struct{}, len(skip)+1)
	skipped["_id"] = struct{}{}
	for _, k := range skip {
		skipped[k] = struct{}{}
	}
	out := make(bson.D, 0, len(doc))
	for _, elem := range doc {
		if _, ok := skipped[elem.Key]; ok {
			continue
		}
		out = append(out, elem)
	}
	return out, nil
}

func containsRegex(term string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

// MongoQueryRepository is the MongoDB implementation of the query store.
type MongoQueryRepository struct {
	client *mongo.Client
	col    *mongo.Collection
	kb     *mongo.Collection
}

// NewMongoQueryRepository constructs the repository.
func NewMongoQueryRepository(client *mongo.Client, db *mongo.Database) *MongoQueryRepository {
	return &MongoQueryRepository{
		client: client,
		col:    db.Collection(queriesCollection),
		kb:     db.Collection(knowledgeBaseCollection),
	}
}

// Create inserts a new query at revision 1.
func (r *MongoQueryRepository) Create(ctx context.Context, q *models.Query) error {
	q.Revision = 1
	if _, err := r.col.InsertOne(ctx, q); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create query: %w", err)
	}
	return nil
}

// GetByID loads a query; ErrNotFound when absent.
func (r *MongoQueryRepository) GetByID(ctx context.Context, id string) (*models.Query, error) {
	var q models.Query
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&q); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get query: %w", err)
	}
	return &q, nil
}

// Save persists the aggregate if its revision is unchanged and bumps the revision.
func (r *MongoQueryRepository) Save(ctx context.Context, q *models.Query) error {
	return r.save(ctx, q)
}

func (r *MongoQueryRepository) save(ctx context.Context, q *models.Query) error {
	set, err := documentSet(q, "views", "revision")
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	filter := bson.D{{Key: "_id", Value: q.ID}, {Key: "revision", Value: q.Revision}}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "revision", Value: 1}}},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("save query: %w", err)
	}
	if res.MatchedCount == 0 {
		return staleOrMissingDocument(ctx, r.col, q.ID)
	}
	q.Revision++
	return nil
}

// Delete removes a query; ErrNotFound when absent.
func (r *MongoQueryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews atomically bumps the read counter.
func (r *MongoQueryRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	var out struct {
		Views int64 `bson:"views"`
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "views", Value: 1}})
	err := r.col.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "views", Value: 1}}}},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment query views: %w", err)
	}
	return out.Views, nil
}

var mongoQuerySortFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"status":    "status",
	"views":     "views",
	"title":     "title",
}

// List returns a page of queries matching the filter plus the total match count.
func (r *MongoQueryRepository) List(ctx context.Context, filter models.QueryFilter) ([]models.Query, int, error) {
	query := bson.D{}
	if len(filter.Status) > 0 {
		query = append(query, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: filter.Status}}})
	}
	if filter.Organization != "" {
		query = append(query, bson.E{Key: "organization", Value: filter.Organization})
	}
	if filter.SubmittedBy != "" {
		query = append(query, bson.E{Key: "submittedBy", Value: filter.SubmittedBy})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		re := containsRegex(search)
		query = append(query, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
			bson.D{{Key: "cause", Value: re}},
			bson.D{{Key: "stage", Value: re}},
			bson.D{{Key: "tags", Value: re}},
		}})
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count queries: %w", err)
	}

	sortField, ok := mongoQuerySortFields[filter.SortBy]
	if !ok {
		sortField = "createdAt"
	}
	direction := -1
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = 1
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: direction}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list queries: %w", err)
	}
	result := make([]models.Query, 0, limit)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("decode queries: %w", err)
	}
	return result, int(total), nil
}

func (r *MongoQueryRepository) countBy(ctx context.Context, field string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count queries by %s: %w", field, err)
	}
	var rows []struct {
		Key   string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s counts: %w", field, err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

// CountByStatus returns the number of queries per status.
func (r *MongoQueryRepository) CountByStatus(ctx context.Context) (map[models.QueryStatus]int, error) {
	raw, err := r.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	out := make(map[models.QueryStatus]int, len(raw))
	for k, v := range raw {
		out[models.QueryStatus(k)] = v
	}
	return out, nil
}

// CountByOrganization returns the number of queries per organization.
func (r *MongoQueryRepository) CountByOrganization(ctx context.Context) (map[models.Organization]int, error) {
	raw, err := r.countBy(ctx, "organization")
	if err != nil {
		return nil, err
	}
	out := make(map[models.Organization]int, len(raw))
	for k, v := range raw {
		out[models.Organization(k)] = v
	}
	return out, nil
}

// Publish inserts the entry and saves the query inside a multi-document transaction.
func (r *MongoQueryRepository) Publish(ctx context.Context, q *models.Query, entry *models.KnowledgeBaseEntry) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start publish session: %w", err)
	}
	defer session.EndSession(ctx)

	revision := q.Revision
	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (interface{}, error) {
		q.Revision = revision
		entry.Revision = 1
		if _, err := r.kb.InsertOne(txCtx, entry); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrDuplicate
			}
			return nil, fmt.Errorf("insert knowledge base entry: %w", err)
		}
		return nil, r.save(txCtx, q)
	})
	if err != nil {
		q.Revision = revision
		return err
	}
	return nil
}

// MongoKnowledgeBaseRepository is the MongoDB implementation of the knowledge base store.
type MongoKnowledgeBaseRepository struct {
	col *mongo.Collection
}

// NewMongoKnowledgeBaseRepository constructs the repository.
func NewMongoKnowledgeBaseRepository(db *mongo.Database) *MongoKnowledgeBaseRepository {
	return &MongoKnowledgeBaseRepository{col: db.Collection(knowledgeBaseCollection)}
}

// GetByID loads an entry; ErrNotFound when absent.
func (r *MongoKnowledgeBaseRepository) GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetBySourceQuery loads the entry published from a query; ErrNotFound when absent.
func (r *MongoKnowledgeBaseRepository) GetBySourceQuery(ctx context.Context, queryID string) (*models.KnowledgeBaseEntry, error) {
	return r.findOne(ctx, bson.D{{Key: "workflow.sourceQuery", Value: queryID}})
}

func (r *MongoKnowledgeBaseRepository) findOne(ctx context.Context, filter bson.D) (*models.KnowledgeBaseEntry, error) {
	var entry models.KnowledgeBaseEntry
	if err := r.col.FindOne(ctx, filter).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get knowledge base entry: %w", err)
	}
	return &entry, nil
}

// Save persists the entry if its revision is unchanged. View metrics are left to RecordView.
func (r *MongoKnowledgeBaseRepository) Save(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	set, err := documentSet(entry, "metrics", "revision")
	if err != nil {
		return fmt.Errorf("encode knowledge base entry: %w", err)
	}
	set = append(set,
		bson.E{Key: "metrics.helpful", Value: entry.Metrics.Helpful},
		bson.E{Key: "metrics.notHelpful", Value: entry.Metrics.NotHelpful},
		bson.E{Key: "metrics.searches", Value: entry.Metrics.Searches},
	)
	filter := bson.D{{Key: "_id", Value: entry.ID}, {Key: "revision", Value: entry.Revision}}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "revision", Value: 1}}},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("save knowledge base entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return staleOrMissingDocument(ctx, r.col, entry.ID)
	}
	entry.Revision++
	return nil
}

// RecordView bumps the view counter and stamps the access time atomically.
func (r *MongoKnowledgeBaseRepository) RecordView(ctx context.Context, id string, at time.Time) (int64, error) {
	var out struct {
		Metrics struct {
			Views int64 `bson:"views"`
		} `bson:"metrics"`
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "metrics.views", Value: 1}})
	err := r.col.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "metrics.views", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "metrics.lastAccessed", Value: at}}},
		},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record knowledge base view: %w", err)
	}
	return out.Metrics.Views, nil
}

// List returns a page of entries, featured first then newest, plus the total match count.
func (r *MongoKnowledgeBaseRepository) List(ctx context.Context, filter models.KnowledgeBaseFilter) ([]models.KnowledgeBaseEntry, int, error) {
	query := bson.D{}
	if filter.Organization != "" {
		query = append(query, bson.E{Key: "organization", Value: filter.Organization})
	}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.Featured != nil {
		query = append(query, bson.E{Key: "featured", Value: *filter.Featured})
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		query = append(query, bson.E{Key: "tags", Value: tag})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		re := containsRegex(search)
		query = append(query, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "content", Value: re}},
			bson.D{{Key: "summary", Value: re}},
			bson.D{{Key: "searchKeywords", Value: re}},
		}})
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count knowledge base entries: %w", err)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "featured", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list knowledge base entries: %w", err)
	}
	result := make([]models.KnowledgeBaseEntry, 0, limit)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("decode knowledge base entries: %w", err)
	}
	return result, int(total), nil
}

// MongoUserRepository resolves actor references from the users collection.
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository constructs the repository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(usersCollection)}
}

type mongoUser struct {
	ID           string              `bson:"_id"`
	Name         string              `bson:"name"`
	Email        string              `bson:"email"`
	Role         models.UserRole     `bson:"role"`
	Organization models.Organization `bson:"organization"`
}

// FindByIDs returns the users matching ids.
func (r *MongoUserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cursor, err := r.col.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	var docs []mongoUser
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, models.User{ID: d.ID, Name: d.Name, Email: d.Email, Role: d.Role, Organization: d.Organization})
	}
	return users, nil
}
