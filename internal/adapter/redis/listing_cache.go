package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// CachedListingRepo answers Exists from a seen cache before touching the
// store. The store stays the source of truth: a cache miss or cache error
// always falls through.
type CachedListingRepo struct {
	repository.ListingRepository
	seen   repository.SeenRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedListingRepo wraps store with the seen cache.
func NewCachedListingRepo(store repository.ListingRepository, seen repository.SeenRepository, ttl time.Duration, logger *zap.Logger) *CachedListingRepo {
	return &CachedListingRepo{
		ListingRepository: store,
		seen:              seen,
		ttl:               ttl,
		logger:            logger,
	}
}

func (c *CachedListingRepo) Exists(ctx context.Context, id string) (bool, error) {
	hit, err := c.seen.IsSeen(ctx, id)
	if err != nil {
		c.logger.Warn("seen cache lookup failed", zap.String("id", id), zap.Error(err))
	} else if hit {
		return true, nil
	}

	exists, err := c.ListingRepository.Exists(ctx, id)
	if err != nil || !exists {
		return exists, err
	}
	c.remember(ctx, id)
	return true, nil
}

func (c *CachedListingRepo) Upsert(ctx context.Context, l *entity.Listing) (bool, error) {
	isNew, err := c.ListingRepository.Upsert(ctx, l)
	if err != nil {
		return false, err
	}
	c.remember(ctx, l.ID)
	return isNew, nil
}

func (c *CachedListingRepo) remember(ctx context.Context, id string) {
	if err := c.seen.MarkSeen(ctx, id, c.ttl); err != nil {
		c.logger.Warn("seen cache write failed", zap.String("id", id), zap.Error(err))
	}
}
