package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	"MycoCast/pkg/config"
)

type stubStore struct {
	fv      *models.FeatureVector
	fvErr   error
	tele    *models.TelemetrySnapshot
	teleErr error
}

func (s *stubStore) GetFeatures(_ context.Context, _, _ string, _ time.Time) (*models.FeatureVector, error) {
	return s.fv, s.fvErr
}

func (s *stubStore) GetLatestTelemetry(_ context.Context, _ string, _ time.Time) (*models.TelemetrySnapshot, error) {
	return s.tele, s.teleErr
}

var resolverBucket = time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

func resolverPricing() config.PricingConfig {
	return config.PricingConfig{MarkupB2B: 1.2, MarkupB2C: 1.5, PackagingPremium: 10, FallbackMandiPrice: 140}
}

func storedRow() *models.FeatureVector {
	return &models.FeatureVector{
		AsOf: resolverBucket.Add(-2 * time.Hour),
		Values: map[string]float64{
			"mandi_price_per_kg":  150,
			"wedding_density_30d": 4,
			"lag_7_sales_mean":    118,
		},
	}
}

func resolverRequest() *models.ForecastRequest {
	return &models.ForecastRequest{
		SKU:         "MUSH-250g",
		Region:      "Pune",
		Channel:     models.ChannelB2C,
		Bucket:      resolverBucket,
		Granularity: "day",
		RequestedAt: resolverBucket.Add(10 * time.Hour),
	}
}

func TestResolveDerivesPricing(t *testing.T) {
	store := &stubStore{fv: storedRow(), teleErr: errors.New("empty")}
	r := NewResolver(store, resolverPricing())

	req := resolverRequest()
	override := 250.0
	req.PriceOverride = &override

	resolved, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fv := resolved.Vector

	if pkg, _ := fv.Get("packaging_kg"); math.Abs(pkg-0.25) > 1e-12 {
		t.Fatalf("packaging_kg = %v, want 0.25", pkg)
	}
	// 150*1.5 + 0.25*10
	optimal, _ := fv.Get("optimal_price_per_kg")
	if math.Abs(optimal-227.5) > 1e-9 {
		t.Fatalf("optimal_price_per_kg = %v, want 227.5", optimal)
	}
	ratio, _ := fv.Get("price_ratio")
	if math.Abs(ratio-250.0/227.5) > 1e-9 {
		t.Fatalf("price_ratio = %v, want %v", ratio, 250.0/227.5)
	}
	if !fv.Partial {
		t.Fatalf("vector without telemetry not marked partial")
	}
	if resolved.Telemetry != nil {
		t.Fatalf("unexpected telemetry: %+v", resolved.Telemetry)
	}
}

func TestResolveB2BMarkupNoRatioWithoutOverride(t *testing.T) {
	store := &stubStore{fv: storedRow(), teleErr: errors.New("empty")}
	r := NewResolver(store, resolverPricing())

	req := resolverRequest()
	req.SKU = "MUSH-5kg"
	req.Channel = models.ChannelB2B

	resolved, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// 150*1.2 + 5*10
	optimal, _ := resolved.Vector.Get("optimal_price_per_kg")
	if math.Abs(optimal-230) > 1e-9 {
		t.Fatalf("optimal_price_per_kg = %v, want 230", optimal)
	}
	if _, ok := resolved.Vector.Get("price_ratio"); ok {
		t.Fatalf("price_ratio derived without an override")
	}
}

func TestResolveFallbackMandiPrice(t *testing.T) {
	row := storedRow()
	delete(row.Values, "mandi_price_per_kg")
	store := &stubStore{fv: row, teleErr: errors.New("empty")}
	r := NewResolver(store, resolverPricing())

	resolved, err := r.Resolve(context.Background(), resolverRequest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// 140*1.5 + 0.25*10
	optimal, _ := resolved.Vector.Get("optimal_price_per_kg")
	if math.Abs(optimal-212.5) > 1e-9 {
		t.Fatalf("optimal_price_per_kg = %v, want 212.5", optimal)
	}
}

func TestResolveMergesTelemetry(t *testing.T) {
	req := resolverRequest()
	req.Telemetry = &models.TelemetrySnapshot{
		Region:           "Pune",
		Timestamp:        req.RequestedAt.Add(-5 * time.Minute),
		MandiPricePerKg:  160,
		POSTransactions:  51,
		BaselinePred:     118,
		ActualSalesSoFar: 70,
	}
	// store lookup must not run when telemetry arrives inline
	store := &stubStore{fv: storedRow(), teleErr: errors.New("store should not be queried")}
	r := NewResolver(store, resolverPricing())

	resolved, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fv := resolved.Vector
	if fv.Partial {
		t.Fatalf("vector with inline telemetry marked partial")
	}
	if now, _ := fv.Get("mandi_price_now_per_kg"); now != 160 {
		t.Fatalf("mandi_price_now_per_kg = %v, want 160", now)
	}
	// historical mandi price stays distinct from the realtime one
	if hist, _ := fv.Get("mandi_price_per_kg"); hist != 150 {
		t.Fatalf("mandi_price_per_kg = %v, want 150", hist)
	}
	if resolved.Telemetry != req.Telemetry {
		t.Fatalf("inline telemetry not surfaced")
	}
}

func TestResolveStoreTelemetryFallback(t *testing.T) {
	tele := &models.TelemetrySnapshot{Region: "Pune", Timestamp: resolverBucket.Add(9 * time.Hour), POSTransactions: 12}
	store := &stubStore{fv: storedRow(), tele: tele}
	r := NewResolver(store, resolverPricing())

	resolved, err := r.Resolve(context.Background(), resolverRequest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Telemetry != tele {
		t.Fatalf("stored telemetry not used")
	}
	if resolved.Vector.Partial {
		t.Fatalf("vector marked partial despite stored telemetry")
	}
}

func TestResolveFeatureUnavailable(t *testing.T) {
	store := &stubStore{fvErr: models.ErrFeatureUnavailable}
	r := NewResolver(store, resolverPricing())

	_, err := r.Resolve(context.Background(), resolverRequest())
	if !errors.Is(err, models.ErrFeatureUnavailable) {
		t.Fatalf("err = %v, want ErrFeatureUnavailable", err)
	}
}

func TestResolveRejectsFutureRow(t *testing.T) {
	row := storedRow()
	row.AsOf = resolverBucket.Add(time.Hour)
	store := &stubStore{fv: row, teleErr: errors.New("empty")}
	r := NewResolver(store, resolverPricing())

	if _, err := r.Resolve(context.Background(), resolverRequest()); err == nil {
		t.Fatalf("row dated after bucket start accepted")
	}
}

func TestResolveDoesNotMutateStoreRow(t *testing.T) {
	row := storedRow()
	store := &stubStore{fv: row, teleErr: errors.New("empty")}
	r := NewResolver(store, resolverPricing())

	if _, err := r.Resolve(context.Background(), resolverRequest()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(row.Values) != 3 {
		t.Fatalf("store row grew to %d values", len(row.Values))
	}
	if _, ok := row.Values["optimal_price_per_kg"]; ok {
		t.Fatalf("derived feature written back into store row")
	}
}
