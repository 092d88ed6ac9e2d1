package storage

import (
	"context"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

// TrancheLedger is the subset of TrancheRepository the cache wraps
type TrancheLedger interface {
	Create(ctx context.Context, t *models.Tranche) error
	GetByID(ctx context.Context, id string) (*models.Tranche, error)
	ListActive(ctx context.Context) ([]*models.Tranche, error)
}

// CachedTrancheStore serves ListActive from Redis for up to the cache TTL.
// GetByID always reads through, so pricing and capacity checks see the
// ledger. Cache failures fall back to the ledger.
type CachedTrancheStore struct {
	next  TrancheLedger
	cache *CacheService
}

// NewCachedTrancheStore wraps next with cache
func NewCachedTrancheStore(next TrancheLedger, cache *CacheService) *CachedTrancheStore {
	return &CachedTrancheStore{next: next, cache: cache}
}

// Create inserts the tranche and drops the cached list
func (s *CachedTrancheStore) Create(ctx context.Context, t *models.Tranche) error {
	if err := s.next.Create(ctx, t); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, s.key()); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("failed to invalidate tranche cache")
	}
	return nil
}

// GetByID reads through to the ledger
func (s *CachedTrancheStore) GetByID(ctx context.Context, id string) (*models.Tranche, error) {
	return s.next.GetByID(ctx, id)
}

// ListActive returns the cached list when present
func (s *CachedTrancheStore) ListActive(ctx context.Context) ([]*models.Tranche, error) {
	logger := logging.FromContext(ctx)

	var cached []*models.Tranche
	hit, err := s.cache.Get(ctx, s.key(), &cached)
	if err != nil {
		logger.WithError(err).Warn("tranche cache read failed")
	}
	if hit {
		return cached, nil
	}

	tranches, err := s.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, s.key(), tranches); err != nil {
		logger.WithError(err).Warn("tranche cache write failed")
	}
	return tranches, nil
}

func (s *CachedTrancheStore) key() string {
	return s.cache.GenerateCacheKey(CacheKeyTranches, "active")
}
