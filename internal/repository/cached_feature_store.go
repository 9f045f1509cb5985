package repository

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	pkgcache "MycoCast/pkg/cache"
)

// CachedFeatureStore decorates a FeatureStore with a short-TTL read cache.
// Feature rows change on the batch cadence, telemetry on the feed cadence,
// so a small window of staleness is acceptable for both.
type CachedFeatureStore struct {
	inner   domrepo.FeatureStore
	cache   pkgcache.Service
	rowTTL  time.Duration
	teleTTL time.Duration
}

func NewCachedFeatureStore(inner domrepo.FeatureStore, cache pkgcache.Service) *CachedFeatureStore {
	return &CachedFeatureStore{
		inner:   inner,
		cache:   cache,
		rowTTL:  time.Minute,
		teleTTL: 15 * time.Second,
	}
}

func (s *CachedFeatureStore) GetFeatures(ctx context.Context, sku, region string, asOf time.Time) (*models.FeatureVector, error) {
	key := fmt.Sprintf("features:%s:%s:%d", sku, region, asOf.Unix())
	var raw interface{}
	if err := s.cache.Get(ctx, key, &raw); err == nil {
		if fv, ok := raw.(*models.FeatureVector); ok {
			return fv, nil
		}
	}

	fv, err := s.inner.GetFeatures(ctx, sku, region, asOf)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, fv, s.rowTTL)
	return fv, nil
}

func (s *CachedFeatureStore) GetLatestTelemetry(ctx context.Context, region string, asOf time.Time) (*models.TelemetrySnapshot, error) {
	// asOf is the caller's wall clock; bucket it to the TTL window so
	// successive requests within the window share a key.
	key := fmt.Sprintf("telemetry:%s:%d", region, asOf.Truncate(s.teleTTL).Unix())
	var raw interface{}
	if err := s.cache.Get(ctx, key, &raw); err == nil {
		if t, ok := raw.(*models.TelemetrySnapshot); ok {
			return t, nil
		}
	}

	t, err := s.inner.GetLatestTelemetry(ctx, region, asOf)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, t, s.teleTTL)
	return t, nil
}
