package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/query-kb-api/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryRepository stores query aggregates as JSONB documents. Status, organization and
// submitter are mirrored into columns for filtering; views live only in their column.
type QueryRepository struct {
	db *sqlx.DB
}

// NewQueryRepository constructs the repository.
func NewQueryRepository(db *sqlx.DB) *QueryRepository {
	return &QueryRepository{db: db}
}

type queryRow struct {
	ID           string    `db:"id"`
	Revision     int       `db:"revision"`
	Status       string    `db:"status"`
	Organization string    `db:"organization"`
	SubmittedBy  string    `db:"submitted_by"`
	Views        int64     `db:"views"`
	Document     []byte    `db:"document"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r queryRow) toModel() (*models.Query, error) {
	var q models.Query
	if err := json.Unmarshal(r.Document, &q); err != nil {
		return nil, fmt.Errorf("decode query %s: %w", r.ID, err)
	}
	q.ID = r.ID
	q.Revision = r.Revision
	q.Views = r.Views
	return &q, nil
}

const querySelectColumns = `SELECT id, revision, status, organization, submitted_by, views, document, created_at, updated_at FROM queries`

// Create inserts a new query at revision 1.
func (r *QueryRepository) Create(ctx context.Context, q *models.Query) error {
	q.Revision = 1
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	const query = `INSERT INTO queries (id, revision, status, organization, submitted_by, views, document, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, q.ID, q.Revision, q.Status, q.Organization, q.SubmittedBy, doc, q.CreatedAt, q.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create query: %w", err)
	}
	return nil
}

// GetByID loads a query; ErrNotFound when absent.
func (r *QueryRepository) GetByID(ctx context.Context, id string) (*models.Query, error) {
	var row queryRow
	if err := r.db.GetContext(ctx, &row, querySelectColumns+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get query: %w", err)
	}
	return row.toModel()
}

// Save persists the aggregate if its revision is unchanged and bumps the revision.
func (r *QueryRepository) Save(ctx context.Context, q *models.Query) error {
	return saveQuery(ctx, r.db, q)
}

func saveQuery(ctx context.Context, exec sqlx.ExtContext, q *models.Query) error {
	next := *q
	next.Revision = q.Revision + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	const query = `UPDATE queries SET revision = $1, status = $2, organization = $3, document = $4, updated_at = $5
	WHERE id = $6 AND revision = $7`
	res, err := exec.ExecContext(ctx, query, next.Revision, q.Status, q.Organization, doc, q.UpdatedAt, q.ID, q.Revision)
	if err != nil {
		return fmt.Errorf("save query: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save query rows affected: %w", err)
	}
	if affected == 0 {
		return staleOrMissing(ctx, exec, "queries", q.ID)
	}
	q.Revision = next.Revision
	return nil
}

// Delete removes a query; ErrNotFound when absent.
func (r *QueryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews atomically bumps the read counter without touching the document.
func (r *QueryRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	if err := r.db.GetContext(ctx, &views, `UPDATE queries SET views = views + 1 WHERE id = $1 RETURNING views`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment query views: %w", err)
	}
	return views, nil
}

var querySortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"status":    "status",
	"views":     "views",
	"title":     "document->>'title'",
}

// List returns a page of queries matching the filter plus the total match count.
func (r *QueryRepository) List(ctx context.Context, filter models.QueryFilter) ([]models.Query, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Organization != "" {
		args = append(args, filter.Organization)
		conditions = append(conditions, fmt.Sprintf("organization = $%d", len(args)))
	}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		conditions = append(conditions, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		p := len(args)
		conditions = append(conditions, fmt.Sprintf(`(document->>'title' ILIKE $%[1]d OR document->>'description' ILIKE $%[1]d
		OR document->>'cause' ILIKE $%[1]d OR document->>'stage' ILIKE $%[1]d
		OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(document->'tags') tag WHERE tag ILIKE $%[1]d))`, p))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM queries`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count queries: %w", err)
	}

	sortColumn, ok := querySortColumns[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY %s %s, id LIMIT %d OFFSET %d", querySelectColumns, where, sortColumn, direction, limit, offset)
	var rows []queryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list queries: %w", err)
	}

	result := make([]models.Query, 0, len(rows))
	for _, row := range rows {
		q, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *q)
	}
	return result, total, nil
}

type groupCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// CountByStatus returns the number of queries per status.
func (r *QueryRepository) CountByStatus(ctx context.Context) (map[models.QueryStatus]int, error) {
	var rows []groupCount
	if err := r.db.SelectContext(ctx, &rows, `SELECT status AS key, COUNT(*) AS count FROM queries GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count queries by status: %w", err)
	}
	out := make(map[models.QueryStatus]int, len(rows))
	for _, row := range rows {
		out[models.QueryStatus(row.Key)] = row.Count
	}
	return out, nil
}

// CountByOrganization returns the number of queries per organization.
func (r *QueryRepository) CountByOrganization(ctx context.Context) (map[models.Organization]int, error) {
	var rows []groupCount
	if err := r.db.SelectContext(ctx, &rows, `SELECT organization AS key, COUNT(*) AS count FROM queries GROUP BY organization`); err != nil {
		return nil, fmt.Errorf("count queries by organization: %w", err)
	}
	out := make(map[models.Organization]int, len(rows))
	for _, row := range rows {
		out[models.Organization(row.Key)] = row.Count
	}
	return out, nil
}

// Publish inserts the knowledge base entry and saves the linked query in one transaction.
// ErrDuplicate means an entry already exists for the source query.
func (r *QueryRepository) Publish(ctx context.Context, q *models.Query, entry *models.KnowledgeBaseEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertKnowledgeBaseEntry(ctx, tx, entry); err != nil {
		return err
	}
	revision := q.Revision
	if err = saveQuery(ctx, tx, q); err != nil {
		q.Revision = revision
		return err
	}
	if err = tx.Commit(); err != nil {
		q.Revision = revision
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

func pageWindow(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
