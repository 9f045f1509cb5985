package repository

import (
	"context"
	"time"

	"MycoCast/internal/domain/models"
)

// FeatureStore provides read-only, point-in-time access to features.
// Implementations must never return rows with as-of timestamps after asOf.
type FeatureStore interface {
	// GetFeatures returns the latest historical feature row for the pair
	// with as-of <= asOf, or models.ErrFeatureUnavailable when none exists.
	GetFeatures(ctx context.Context, sku, region string, asOf time.Time) (*models.FeatureVector, error)

	// GetLatestTelemetry returns the freshest telemetry snapshot for the
	// region with timestamp <= asOf, or nil when none exists.
	GetLatestTelemetry(ctx context.Context, region string, asOf time.Time) (*models.TelemetrySnapshot, error)
}
