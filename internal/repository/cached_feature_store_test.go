package repository

import (
	"context"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	pkgcache "MycoCast/pkg/cache"
)

type countingStore struct {
	featureCalls   int
	telemetryCalls int
}

func (s *countingStore) GetFeatures(_ context.Context, sku, region string, asOf time.Time) (*models.FeatureVector, error) {
	s.featureCalls++
	return &models.FeatureVector{
		SKU: sku, Region: region, AsOf: asOf,
		Values: map[string]float64{"mandi_price_per_kg": 140},
	}, nil
}

func (s *countingStore) GetLatestTelemetry(_ context.Context, region string, asOf time.Time) (*models.TelemetrySnapshot, error) {
	s.telemetryCalls++
	return &models.TelemetrySnapshot{Region: region, Timestamp: asOf.Add(-time.Minute)}, nil
}

func TestCachedFeatureStoreReusesTelemetryWithinTTLWindow(t *testing.T) {
	inner := &countingStore{}
	store := NewCachedFeatureStore(inner, pkgcache.NewMemoryCache())

	// Request clocks a few seconds apart must land on the same cache key.
	base := time.Date(2026, 3, 5, 10, 0, 1, 0, time.UTC)
	for i := 0; i < 5; i++ {
		asOf := base.Add(time.Duration(i) * time.Second)
		tele, err := store.GetLatestTelemetry(context.Background(), "Pune", asOf)
		if err != nil {
			t.Fatalf("get telemetry %d: %v", i, err)
		}
		if tele.Region != "Pune" {
			t.Fatalf("region = %s, want Pune", tele.Region)
		}
	}
	if inner.telemetryCalls != 1 {
		t.Fatalf("inner telemetry calls = %d, want 1", inner.telemetryCalls)
	}

	// A clock past the TTL window falls into a new bucket.
	if _, err := store.GetLatestTelemetry(context.Background(), "Pune", base.Add(20*time.Second)); err != nil {
		t.Fatalf("get telemetry past window: %v", err)
	}
	if inner.telemetryCalls != 2 {
		t.Fatalf("inner telemetry calls = %d, want 2", inner.telemetryCalls)
	}

	// Regions never share entries.
	if _, err := store.GetLatestTelemetry(context.Background(), "Nashik", base); err != nil {
		t.Fatalf("get telemetry other region: %v", err)
	}
	if inner.telemetryCalls != 3 {
		t.Fatalf("inner telemetry calls = %d, want 3", inner.telemetryCalls)
	}
}

func TestCachedFeatureStoreReusesFeatureRows(t *testing.T) {
	inner := &countingStore{}
	store := NewCachedFeatureStore(inner, pkgcache.NewMemoryCache())

	bucket := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		fv, err := store.GetFeatures(context.Background(), "MUSH-250g", "Pune", bucket)
		if err != nil {
			t.Fatalf("get features %d: %v", i, err)
		}
		if _, ok := fv.Get("mandi_price_per_kg"); !ok {
			t.Fatalf("cached row lost mandi price")
		}
	}
	if inner.featureCalls != 1 {
		t.Fatalf("inner feature calls = %d, want 1", inner.featureCalls)
	}
}
