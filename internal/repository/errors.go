package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store-level failures shared by the Postgres and Mongo implementations.
var (
	ErrNotFound         = errors.New("record not found")
	ErrRevisionConflict = errors.New("record was modified concurrently")
	ErrDuplicate        = errors.New("record already exists")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// staleOrMissing explains a guarded UPDATE that touched no rows: ErrNotFound when the
// row is gone, ErrRevisionConflict when someone else saved first.
func staleOrMissing(ctx context.Context, q sqlx.QueryerContext, table, id string) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check %s row: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrRevisionConflict
}

func staleOrMissingDocument(ctx context.Context, col *mongo.Collection, id string) error {
	n, err := col.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check %s document: %w", col.Name(), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrRevisionConflict
}
