package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	icache "MycoCast/internal/service/cache"
	"MycoCast/internal/service/decision"
	"MycoCast/internal/service/recorder"
	"MycoCast/internal/services/features"
	"MycoCast/pkg/config"
)

type fakeAdapter struct {
	kind models.ModelKind
	out  models.ModelOutput
	err  error
}

func (f *fakeAdapter) Kind() models.ModelKind { return f.kind }

func (f *fakeAdapter) Infer(_ context.Context, _ *models.FeatureVector) (models.ModelOutput, error) {
	return f.out, f.err
}

type fakeFeatureStore struct {
	fv  *models.FeatureVector
	err error
}

func (s *fakeFeatureStore) GetFeatures(_ context.Context, sku, region string, _ time.Time) (*models.FeatureVector, error) {
	if s.err != nil {
		return nil, s.err
	}
	fv := *s.fv
	fv.SKU = sku
	fv.Region = region
	return &fv, nil
}

func (s *fakeFeatureStore) GetLatestTelemetry(_ context.Context, _ string, _ time.Time) (*models.TelemetrySnapshot, error) {
	return nil, errors.New("no telemetry stored")
}

func pointAdapter(kind models.ModelKind, qty, stddev float64) *fakeAdapter {
	return &fakeAdapter{kind: kind, out: models.ModelOutput{
		Kind:  kind,
		Point: &models.PointEstimate{Quantity: qty, StdDev: stddev},
	}}
}

func multAdapter(kind models.ModelKind, factor, conf float64) *fakeAdapter {
	return &fakeAdapter{kind: kind, out: models.ModelOutput{
		Kind: kind,
		Mult: &models.Multiplier{Factor: factor, Confidence: conf},
	}}
}

func failingAdapter(kind models.ModelKind) *fakeAdapter {
	return &fakeAdapter{kind: kind, err: errors.New("model service unavailable")}
}

var testBucket = time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

func testFeatureRow() *models.FeatureVector {
	return &models.FeatureVector{
		AsOf: testBucket.Add(-time.Hour),
		Values: map[string]float64{
			"mandi_price_per_kg":    140,
			"wedding_density_30d":   4,
			"panchang_fasting_flag": 0,
			"festival_flag":         0,
			"temp_max_c":            31,
			"lag_1_sales":           110,
			"lag_7_sales_mean":      118,
		},
	}
}

func newTestEngine(adapters []domsvc.ModelAdapter) *FusionEngine {
	resolver := features.NewResolver(&fakeFeatureStore{fv: testFeatureRow()}, config.PricingConfig{
		MarkupB2B: 1.2, MarkupB2C: 1.5, PackagingPremium: 10, FallbackMandiPrice: 140,
	})
	cache := decision.New(icache.NewTTLCache(), time.Minute, nil)
	return NewFusionEngine(resolver, adapters, cache, recorder.New(nil), nil, FusionConfig{
		FreshnessWindow: 15 * time.Minute,
	})
}

func testRequest(now time.Time) *models.ForecastRequest {
	override := 250.0
	return &models.ForecastRequest{
		SKU:           "MUSH-250g",
		Region:        "Pune",
		Channel:       models.ChannelB2C,
		Bucket:        testBucket,
		Granularity:   "day",
		PriceOverride: &override,
		Telemetry: &models.TelemetrySnapshot{
			Region:           "Pune",
			Timestamp:        now.Add(-5 * time.Minute),
			POSTransactions:  42,
			BaselinePred:     118,
			ActualSalesSoFar: 64,
		},
		RequestedAt: now,
	}
}

func TestDecideAllStagesApplied(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		pointAdapter(models.ModelB2C, 120, 0),
		failingAdapter(models.ModelB2B),
		multAdapter(models.ModelElasticity, 1.08, 0.97),
		multAdapter(models.ModelIntraday, 0.95, 0.9),
	})

	dec, exp, err := engine.Decide(context.Background(), testRequest(now))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if math.Abs(dec.Quantity-123.12) > 1e-9 {
		t.Fatalf("quantity = %v, want 123.12", dec.Quantity)
	}
	if len(dec.Contributions) != 3 {
		t.Fatalf("contributions = %d, want 3", len(dec.Contributions))
	}
	for _, c := range dec.Contributions {
		if c.Status != models.StageApplied {
			t.Fatalf("stage %s status = %s, want applied", c.Stage, c.Status)
		}
	}
	sum := 0.0
	for _, c := range dec.Contributions {
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Fatalf("weights sum = %v, want 1.0", sum)
	}
	// base outweighs both corrections
	if dec.Contributions[0].Weight <= dec.Contributions[1].Weight {
		t.Fatalf("base weight %v not above elasticity %v", dec.Contributions[0].Weight, dec.Contributions[1].Weight)
	}
	if dec.Confidence <= 0 || dec.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", dec.Confidence)
	}
	if exp.CacheHit {
		t.Fatalf("first decide reported cache hit")
	}
	if len(exp.Trail) == 0 {
		t.Fatalf("expected non-empty explanation trail")
	}
}

func TestDecideStaleTelemetrySkipsIntraday(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		pointAdapter(models.ModelB2C, 120, 0),
		pointAdapter(models.ModelB2B, 30, 0),
		multAdapter(models.ModelElasticity, 1.08, 0.97),
		multAdapter(models.ModelIntraday, 0.95, 0.9),
	})

	req := testRequest(now)
	req.Telemetry.Timestamp = now.Add(-45 * time.Minute)

	dec, _, err := engine.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if math.Abs(dec.Quantity-129.6) > 1e-9 {
		t.Fatalf("quantity = %v, want 129.6", dec.Quantity)
	}
	intra := dec.Contributions[2]
	if intra.Status != models.StageSkipped {
		t.Fatalf("intraday status = %s, want skipped", intra.Status)
	}
	if intra.Weight != 0 {
		t.Fatalf("skipped stage weight = %v, want 0", intra.Weight)
	}
	if intra.Reason == "" {
		t.Fatalf("skipped stage has no reason")
	}
	// intraday term is the model confidence scaled by the 0.5 decay floor
	if math.Abs(dec.Confidence-0.97*0.9*0.5) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", dec.Confidence, 0.97*0.9*0.5)
	}
}

func TestDecideConfidenceMonotonicInStaleness(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	// intraday model confidence below 1 so the fresh/stale boundary is
	// exercised: a just-stale snapshot must not outscore a fresh one.
	mk := func(age time.Duration) float64 {
		engine := newTestEngine([]domsvc.ModelAdapter{
			pointAdapter(models.ModelB2C, 120, 0),
			pointAdapter(models.ModelB2B, 30, 0),
			multAdapter(models.ModelElasticity, 1.08, 1),
			multAdapter(models.ModelIntraday, 0.95, 0.9),
		})
		req := testRequest(now)
		req.Telemetry.Timestamp = now.Add(-age)
		dec, _, err := engine.Decide(context.Background(), req)
		if err != nil {
			t.Fatalf("decide age %v: %v", age, err)
		}
		return dec.Confidence
	}

	fresh := mk(5 * time.Minute)
	justStale := mk(16 * time.Minute)
	slightlyStale := mk(20 * time.Minute)
	veryStale := mk(2 * time.Hour)
	if !(fresh >= justStale && justStale >= slightlyStale && slightlyStale >= veryStale) {
		t.Fatalf("confidence not monotone: fresh=%v just=%v slightly=%v very=%v",
			fresh, justStale, slightlyStale, veryStale)
	}
}

func TestDecideNoPriceOverrideSkipsElasticity(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		pointAdapter(models.ModelB2C, 120, 0),
		pointAdapter(models.ModelB2B, 30, 0),
		multAdapter(models.ModelElasticity, 1.08, 0.97),
		multAdapter(models.ModelIntraday, 0.95, 0.9),
	})

	req := testRequest(now)
	req.PriceOverride = nil

	dec, _, err := engine.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	elast := dec.Contributions[1]
	if elast.Status != models.StageNotApplied {
		t.Fatalf("elasticity status = %s, want not-applied", elast.Status)
	}
	if elast.Multiplier != 1 {
		t.Fatalf("elasticity multiplier = %v, want 1", elast.Multiplier)
	}
	if math.Abs(dec.Quantity-120*0.95) > 1e-9 {
		t.Fatalf("quantity = %v, want %v", dec.Quantity, 120*0.95)
	}
	// list price served when nothing overrides it: 140*1.5 + 0.25*10
	if math.Abs(dec.UnitPrice-212.5) > 1e-9 {
		t.Fatalf("unit price = %v, want 212.5", dec.UnitPrice)
	}
}

func TestDecideChannelFallback(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		failingAdapter(models.ModelB2C),
		pointAdapter(models.ModelB2B, 80, 0),
		multAdapter(models.ModelElasticity, 1.0, 1),
		multAdapter(models.ModelIntraday, 1.0, 1),
	})

	req := testRequest(now)
	req.PriceOverride = nil

	dec, _, err := engine.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	base := dec.Contributions[0]
	if base.Status != models.StageFallback {
		t.Fatalf("base status = %s, want fallback", base.Status)
	}
	if base.Kind != models.ModelB2B {
		t.Fatalf("base kind = %s, want b2b", base.Kind)
	}
	if dec.Quantity != 80 {
		t.Fatalf("quantity = %v, want 80", dec.Quantity)
	}
	if dec.Confidence > 0.5+1e-9 {
		t.Fatalf("fallback confidence = %v, want <= 0.5", dec.Confidence)
	}
}

func TestDecideNoBaseEstimate(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		failingAdapter(models.ModelB2C),
		failingAdapter(models.ModelB2B),
		multAdapter(models.ModelElasticity, 1.0, 1),
		multAdapter(models.ModelIntraday, 1.0, 1),
	})

	_, _, err := engine.Decide(context.Background(), testRequest(now))
	if !errors.Is(err, models.ErrNoBaseEstimate) {
		t.Fatalf("err = %v, want ErrNoBaseEstimate", err)
	}
}

func TestDecideClampsNegativeQuantity(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		pointAdapter(models.ModelB2C, -12, 0),
		pointAdapter(models.ModelB2B, 30, 0),
		multAdapter(models.ModelElasticity, 1.0, 1),
		multAdapter(models.ModelIntraday, 1.0, 1),
	})

	req := testRequest(now)
	req.PriceOverride = nil

	dec, _, err := engine.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Quantity != 0 {
		t.Fatalf("quantity = %v, want 0", dec.Quantity)
	}
	if !dec.Clamped {
		t.Fatalf("decision not marked clamped")
	}
}

func TestDecideCachesByKey(t *testing.T) {
	now := testBucket.Add(10 * time.Hour)
	engine := newTestEngine([]domsvc.ModelAdapter{
		pointAdapter(models.ModelB2C, 120, 0),
		pointAdapter(models.ModelB2B, 30, 0),
		multAdapter(models.ModelElasticity, 1.08, 0.97),
		multAdapter(models.ModelIntraday, 0.95, 0.9),
	})

	req := testRequest(now)
	if _, exp, err := engine.Decide(context.Background(), req); err != nil || exp.CacheHit {
		t.Fatalf("first decide: err=%v hit=%v", err, exp.CacheHit)
	}
	dec, exp, err := engine.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if !exp.CacheHit {
		t.Fatalf("second decide missed cache")
	}
	if math.Abs(dec.Quantity-123.12) > 1e-9 {
		t.Fatalf("cached quantity = %v, want 123.12", dec.Quantity)
	}
	if got := engine.CacheComputations(); got != 1 {
		t.Fatalf("computations = %d, want 1", got)
	}

	if err := engine.InvalidateKey(req.Key()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, exp, err := engine.Decide(context.Background(), req); err != nil || exp.CacheHit {
		t.Fatalf("post-invalidate decide: err=%v hit=%v", err, exp.CacheHit)
	}
	if got := engine.CacheComputations(); got != 2 {
		t.Fatalf("computations after invalidate = %d, want 2", got)
	}
}

func TestStalenessConfidence(t *testing.T) {
	w := 15 * time.Minute
	if got := stalenessConfidence(10*time.Minute, w); got != 1 {
		t.Fatalf("fresh = %v, want 1", got)
	}
	if got := stalenessConfidence(w+w/2, w); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("half-over = %v, want 0.75", got)
	}
	if got := stalenessConfidence(10*w, w); got != 0.5 {
		t.Fatalf("floor = %v, want 0.5", got)
	}
}

func TestNormalizeWeightsSkipsNonContributing(t *testing.T) {
	contribs := normalizeWeights([]models.Contribution{
		{Stage: "base", Status: models.StageApplied},
		{Stage: "elasticity", Status: models.StageNotApplied},
		{Stage: "intraday", Status: models.StageApplied},
	}, []float64{1.0, 0.25, 0.2})

	if contribs[1].Weight != 0 {
		t.Fatalf("not-applied weight = %v, want 0", contribs[1].Weight)
	}
	if math.Abs(contribs[0].Weight+contribs[2].Weight-1.0) > 1e-9 {
		t.Fatalf("weights sum = %v, want 1.0", contribs[0].Weight+contribs[2].Weight)
	}
	if math.Abs(contribs[0].Weight/contribs[2].Weight-5.0) > 1e-9 {
		t.Fatalf("weight ratio = %v, want 5.0", contribs[0].Weight/contribs[2].Weight)
	}
}
