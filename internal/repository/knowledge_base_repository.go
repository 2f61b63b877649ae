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

// KnowledgeBaseRepository stores knowledge base entries as JSONB documents.
type KnowledgeBaseRepository struct {
	db *sqlx.DB
}

// NewKnowledgeBaseRepository constructs the repository.
func NewKnowledgeBaseRepository(db *sqlx.DB) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: db}
}

type knowledgeBaseRow struct {
	ID           string     `db:"id"`
	Revision     int        `db:"revision"`
	Views        int64      `db:"views"`
	LastAccessed *time.Time `db:"last_accessed"`
	Document     []byte     `db:"document"`
}

func (r knowledgeBaseRow) toModel() (*models.KnowledgeBaseEntry, error) {
	var entry models.KnowledgeBaseEntry
	if err := json.Unmarshal(r.Document, &entry); err != nil {
		return nil, fmt.Errorf("decode knowledge base entry %s: %w", r.ID, err)
	}
	entry.ID = r.ID
	entry.Revision = r.Revision
	entry.Metrics.Views = r.Views
	entry.Metrics.LastAccessed = r.LastAccessed
	return &entry, nil
}

const knowledgeBaseSelectColumns = `SELECT id, revision, views, last_accessed, document FROM knowledge_base_entries`

func insertKnowledgeBaseEntry(ctx context.Context, exec sqlx.ExecerContext, entry *models.KnowledgeBaseEntry) error {
	entry.Revision = 1
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode knowledge base entry: %w", err)
	}
	const query = `INSERT INTO knowledge_base_entries
	(id, source_query_id, revision, status, organization, featured, views, document, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`
	if _, err := exec.ExecContext(ctx, query, entry.ID, entry.Workflow.SourceQuery, entry.Revision, entry.Status,
		entry.Organization, entry.Featured, doc, entry.CreatedAt, entry.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert knowledge base entry: %w", err)
	}
	return nil
}

// GetByID loads an entry; ErrNotFound when absent.
func (r *KnowledgeBaseRepository) GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error) {
	var row knowledgeBaseRow
	if err := r.db.GetContext(ctx, &row, knowledgeBaseSelectColumns+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get knowledge base entry: %w", err)
	}
	return row.toModel()
}

// GetBySourceQuery loads the entry published from a query; ErrNotFound when absent.
func (r *KnowledgeBaseRepository) GetBySourceQuery(ctx context.Context, queryID string) (*models.KnowledgeBaseEntry, error) {
	var row knowledgeBaseRow
	if err := r.db.GetContext(ctx, &row, knowledgeBaseSelectColumns+` WHERE source_query_id = $1`, queryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get knowledge base entry by source: %w", err)
	}
	return row.toModel()
}

// Save persists the entry if its revision is unchanged and bumps the revision.
func (r *KnowledgeBaseRepository) Save(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	next := *entry
	next.Revision = entry.Revision + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode knowledge base entry: %w", err)
	}
	const query = `UPDATE knowledge_base_entries
	SET revision = $1, status = $2, organization = $3, featured = $4, document = $5, updated_at = $6
	WHERE id = $7 AND revision = $8`
	res, err := r.db.ExecContext(ctx, query, next.Revision, entry.Status, entry.Organization, entry.Featured, doc,
		entry.UpdatedAt, entry.ID, entry.Revision)
	if err != nil {
		return fmt.Errorf("save knowledge base entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save knowledge base entry rows affected: %w", err)
	}
	if affected == 0 {
		return staleOrMissing(ctx, r.db, "knowledge_base_entries", entry.ID)
	}
	entry.Revision = next.Revision
	return nil
}

// RecordView bumps the view counter and stamps the access time atomically.
func (r *KnowledgeBaseRepository) RecordView(ctx context.Context, id string, at time.Time) (int64, error) {
	var views int64
	const query = `UPDATE knowledge_base_entries SET views = views + 1, last_accessed = $2 WHERE id = $1 RETURNING views`
	if err := r.db.GetContext(ctx, &views, query, id, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record knowledge base view: %w", err)
	}
	return views, nil
}

// List returns a page of entries, featured first then newest, plus the total match count.
func (r *KnowledgeBaseRepository) List(ctx context.Context, filter models.KnowledgeBaseFilter) ([]models.KnowledgeBaseEntry, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	if filter.Organization != "" {
		args = append(args, filter.Organization)
		conditions = append(conditions, fmt.Sprintf("organization = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		conditions = append(conditions, fmt.Sprintf("featured = $%d", len(args)))
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		args = append(args, tag)
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(document->'tags') tag WHERE tag = $%d)", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf(`(document->>'title' ILIKE $%[1]d OR document->>'content' ILIKE $%[1]d
		OR document->>'summary' ILIKE $%[1]d
		OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(document->'searchKeywords') kw WHERE kw ILIKE $%[1]d))`, len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM knowledge_base_entries`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count knowledge base entries: %w", err)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY featured DESC, created_at DESC, id LIMIT %d OFFSET %d",
		knowledgeBaseSelectColumns, where, limit, offset)
	var rows []knowledgeBaseRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list knowledge base entries: %w", err)
	}

	result := make([]models.KnowledgeBaseEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *entry)
	}
	return result, total, nil
}
