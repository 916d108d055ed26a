// Package cache decorates repositories with an in-process TTL cache.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
)

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// UserRepository caches user summaries. Misses are not cached, so a user
// created after a failed lookup resolves on the next call.
type UserRepository struct {
	repository.UserRepository
	cache *gocache.Cache
}

func NewUserRepository(inner repository.UserRepository, cfg Config) *UserRepository {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &UserRepository{
		UserRepository: inner,
		cache:          gocache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) GetSummary(ctx context.Context, id uuid.UUID) (*model.UserSummary, error) {
	key := id.String()
	if v, ok := r.cache.Get(key); ok {
		u := *v.(*model.UserSummary)
		return &u, nil
	}

	u, err := r.UserRepository.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}

	stored := *u
	r.cache.SetDefault(key, &stored)
	return u, nil
}

// Invalidate drops a cached summary.
func (r *UserRepository) Invalidate(id uuid.UUID) {
	r.cache.Delete(id.String())
}
