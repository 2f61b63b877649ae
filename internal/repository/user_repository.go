package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/query-kb-api/internal/models"
)

// UserRepository is the read-only user directory used to resolve actor references.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByIDs returns the users matching ids. Unknown ids are silently absent from the result.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, email, role, organization FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build user lookup: %w", err)
	}
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return users, nil
}
