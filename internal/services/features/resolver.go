package features

import (
	"context"
	"errors"
	"fmt"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	"MycoCast/pkg/config"
)

// Resolved is the resolver's answer for one request: the merged feature
// vector plus the freshest telemetry snapshot backing it, if any.
type Resolved struct {
	Vector    *models.FeatureVector
	Telemetry *models.TelemetrySnapshot
}

// Resolver gathers the feature vector for a request from the feature store,
// enforcing point-in-time correctness: only rows with as-of <= the bucket
// start are eligible, so future telemetry can never leak into a forecast.
type Resolver struct {
	store   domrepo.FeatureStore
	pricing config.PricingConfig
}

func NewResolver(store domrepo.FeatureStore, pricing config.PricingConfig) *Resolver {
	return &Resolver{store: store, pricing: pricing}
}

func (r *Resolver) Resolve(ctx context.Context, req *models.ForecastRequest) (*Resolved, error) {
	fv, err := r.store.GetFeatures(ctx, req.SKU, req.Region, req.Bucket)
	if err != nil {
		if errors.Is(err, models.ErrFeatureUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve features: %w", err)
	}
	if fv.AsOf.After(req.Bucket) {
		return nil, fmt.Errorf("resolve features: store returned row as-of %s after bucket start %s", fv.AsOf, req.Bucket)
	}

	// The resolver owns the vector from here; copy before deriving so the
	// store's row is never aliased by downstream readers.
	merged := &models.FeatureVector{
		SKU:    req.SKU,
		Region: req.Region,
		AsOf:   fv.AsOf,
		Values: make(map[string]float64, len(fv.Values)+10),
	}
	for k, v := range fv.Values {
		merged.Values[k] = v
	}

	r.derivePricing(req, merged)

	tele := r.latestTelemetry(ctx, req)
	if tele == nil {
		merged.Partial = true
	} else {
		for k, v := range TelemetryValues(tele) {
			merged.Values[k] = v
		}
	}

	return &Resolved{Vector: merged, Telemetry: tele}, nil
}

// derivePricing adds packaging_kg, optimal_price_per_kg, and (when the
// request overrides price) price_ratio to the vector.
func (r *Resolver) derivePricing(req *models.ForecastRequest, fv *models.FeatureVector) {
	pkg := PackagingKg(req.SKU)
	if pkg > 0 {
		fv.Values["packaging_kg"] = pkg
	}

	mandi, ok := fv.Get("mandi_price_per_kg")
	if !ok || mandi <= 0 {
		mandi = r.pricing.FallbackMandiPrice
	}
	markup := r.pricing.MarkupB2C
	if req.Channel == models.ChannelB2B {
		markup = r.pricing.MarkupB2B
	}
	optimal := OptimalPrice(mandi, markup, pkg, r.pricing.PackagingPremium)
	if optimal > 0 {
		fv.Values["optimal_price_per_kg"] = optimal
		if req.PriceOverride != nil && *req.PriceOverride > 0 {
			fv.Values["price_ratio"] = *req.PriceOverride / optimal
		}
	}
}

// latestTelemetry prefers the snapshot shipped inline with the request and
// falls back to the store. Lookup failures degrade to partial data.
func (r *Resolver) latestTelemetry(ctx context.Context, req *models.ForecastRequest) *models.TelemetrySnapshot {
	if req.Telemetry != nil {
		return req.Telemetry
	}
	tele, err := r.store.GetLatestTelemetry(ctx, req.Region, req.RequestedAt)
	if err != nil {
		return nil
	}
	return tele
}
