package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/dto"
	"github.com/noah-isme/query-kb-api/internal/models"
)

// UserDirectory looks up display records for actor ids.
type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// ActorDirectory resolves actor ids to display views through a bounded, expiring cache.
// Ids the directory does not know resolve to an id-only view.
type ActorDirectory struct {
	users  UserDirectory
	cache  *expirable.LRU[string, dto.ActorView]
	logger *zap.Logger
}

// NewActorDirectory builds a directory with the given cache bounds.
func NewActorDirectory(users UserDirectory, size int, ttl time.Duration, logger *zap.Logger) *ActorDirectory {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActorDirectory{
		users:  users,
		cache:  expirable.NewLRU[string, dto.ActorView](size, nil, ttl),
		logger: logger,
	}
}

// Resolve returns a view for every id. Lookup failures degrade to id-only views.
func (d *ActorDirectory) Resolve(ctx context.Context, ids []string) map[string]dto.ActorView {
	out := make(map[string]dto.ActorView, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if view, ok := d.cache.Get(id); ok {
			out[id] = view
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 || d.users == nil {
		fillUnknown(out, missing)
		return out
	}

	users, err := d.users.FindByIDs(ctx, missing)
	if err != nil {
		d.logger.Warn("actor lookup failed", zap.Int("count", len(missing)), zap.Error(err))
		fillUnknown(out, missing)
		return out
	}
	for _, u := range users {
		view := dto.ActorView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
		d.cache.Add(u.ID, view)
		out[u.ID] = view
	}
	fillUnknown(out, missing)
	return out
}

func fillUnknown(out map[string]dto.ActorView, ids []string) {
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = dto.ActorView{ID: id}
		}
	}
}
