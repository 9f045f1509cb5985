package modeladapter

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	"MycoCast/pkg/config"
)

type recordedObs struct {
	obs []models.AdapterLatency
}

func (r *recordedObs) ObserveInference(_ context.Context, o models.AdapterLatency) {
	r.obs = append(r.obs, o)
}

func adapterConfig(url string) *config.Config {
	cfg := &config.Config{}
	cfg.Models.ServiceURL = url
	cfg.Models.Timeout = 2 * time.Second
	return cfg
}

func fullVector() *models.FeatureVector {
	return &models.FeatureVector{
		SKU:    "MUSH-250g",
		Region: "Pune",
		Values: map[string]float64{
			"lag_1_sales":                   110,
			"lag_7_sales_mean":              118,
			"wedding_density_30d":           4,
			"panchang_fasting_flag":         0,
			"festival_flag":                 0,
			"mandi_price_per_kg":            150,
			"temp_max_c":                    31,
			"packaging_kg":                  0.25,
			"optimal_price_per_kg":          227.5,
			"price_ratio":                   1.1,
			"pos_transactions_last_hour":    37,
			"intraday_baseline_pred":        118,
			"intraday_actual_sales_partial": 64,
		},
	}
}

func modelService(t *testing.T, path string, resp interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path %s, want %s", r.URL.Path, path)
			http.NotFound(w, r)
			return
		}
		var req pointReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SKU == "" || req.Region == "" {
			t.Errorf("request missing identity: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestB2BInferConvertsKgToUnits(t *testing.T) {
	srv := modelService(t, "/b2b/predict", pointResp{QuantityKg: 30, StdDevKg: 2.5, Model: "b2b-lgbm-v4"})
	defer srv.Close()

	obs := &recordedObs{}
	f := NewHTTPB2BForecaster(adapterConfig(srv.URL), obs)

	out, err := f.Infer(context.Background(), fullVector())
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Point == nil {
		t.Fatalf("no point estimate")
	}
	// 30 kg across 0.25 kg packs
	if math.Abs(out.Point.Quantity-120) > 1e-9 {
		t.Fatalf("quantity = %v, want 120", out.Point.Quantity)
	}
	if math.Abs(out.Point.StdDev-10) > 1e-9 {
		t.Fatalf("stddev = %v, want 10", out.Point.StdDev)
	}
	if out.ModelTag != "b2b-lgbm-v4" {
		t.Fatalf("model tag = %q", out.ModelTag)
	}
	if len(obs.obs) != 1 || obs.obs[0].Failed || obs.obs[0].Kind != models.ModelB2B {
		t.Fatalf("observations = %+v", obs.obs)
	}
}

func TestB2BInferMissingFeatures(t *testing.T) {
	obs := &recordedObs{}
	f := NewHTTPB2BForecaster(adapterConfig("http://model-service.invalid"), obs)

	fv := fullVector()
	delete(fv.Values, "wedding_density_30d")
	delete(fv.Values, "packaging_kg")

	_, err := f.Infer(context.Background(), fv)
	var mfe *models.MissingFeaturesError
	if !errors.As(err, &mfe) {
		t.Fatalf("err = %v, want MissingFeaturesError", err)
	}
	if mfe.Kind != models.ModelB2B || len(mfe.Missing) != 2 {
		t.Fatalf("missing = %+v", mfe)
	}
	if len(obs.obs) != 1 || !obs.obs[0].Failed {
		t.Fatalf("failure not observed: %+v", obs.obs)
	}
}

func TestB2CInferClampsNegative(t *testing.T) {
	srv := modelService(t, "/b2c/predict", b2cResp{Quantity: -3, StdDev: 1, Model: "b2c-xgb-v7"})
	defer srv.Close()

	f := NewHTTPB2CForecaster(adapterConfig(srv.URL), nil)
	out, err := f.Infer(context.Background(), fullVector())
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Point.Quantity != 0 {
		t.Fatalf("quantity = %v, want 0", out.Point.Quantity)
	}
}

func TestElasticityInfer(t *testing.T) {
	srv := modelService(t, "/elasticity/predict", multResp{Multiplier: 0.87, Confidence: 0.95, Model: "elasticity-glm-v2"})
	defer srv.Close()

	m := NewHTTPElasticityModel(adapterConfig(srv.URL), nil)
	out, err := m.Infer(context.Background(), fullVector())
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Mult == nil || out.Mult.Factor != 0.87 || out.Mult.Confidence != 0.95 {
		t.Fatalf("multiplier = %+v", out.Mult)
	}
}

func TestIntradayInferSendsOptionalSignals(t *testing.T) {
	var got pointReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(multResp{Multiplier: 1.05, Confidence: 0.9, Model: "intraday-gbr-v1"})
	}))
	defer srv.Close()

	m := NewHTTPIntradayModel(adapterConfig(srv.URL), nil)
	fv := fullVector()
	fv.Values["vehicle_delay_minutes"] = 12
	fv.Values["weather_now_temp"] = 33.5

	out, err := m.Infer(context.Background(), fv)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Mult.Factor != 1.05 {
		t.Fatalf("factor = %v, want 1.05", out.Mult.Factor)
	}
	if got.Features["vehicle_delay_minutes"] != 12 {
		t.Fatalf("optional delay signal not forwarded: %+v", got.Features)
	}
	if got.Features["weather_now_temp"] != 33.5 {
		t.Fatalf("optional weather signal not forwarded: %+v", got.Features)
	}
	if _, ok := got.Features["weather_now_humidity"]; ok {
		t.Fatalf("absent optional signal forwarded")
	}
}

func TestInferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model artifact missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	obs := &recordedObs{}
	m := NewHTTPElasticityModel(adapterConfig(srv.URL), obs)
	if _, err := m.Infer(context.Background(), fullVector()); err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if len(obs.obs) != 1 || !obs.obs[0].Failed {
		t.Fatalf("failure not observed: %+v", obs.obs)
	}
}

func TestNormalizeMultiplier(t *testing.T) {
	if _, err := normalizeMultiplier(models.ModelElasticity, multResp{Multiplier: 0}); err == nil {
		t.Fatalf("zero multiplier accepted")
	}
	if _, err := normalizeMultiplier(models.ModelElasticity, multResp{Multiplier: -0.2}); err == nil {
		t.Fatalf("negative multiplier accepted")
	}

	out, err := normalizeMultiplier(models.ModelIntraday, multResp{Multiplier: 1.1, Confidence: 0})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Mult.Confidence != 1 {
		t.Fatalf("zero confidence = %v, want defaulted to 1", out.Mult.Confidence)
	}

	out, err = normalizeMultiplier(models.ModelIntraday, multResp{Multiplier: 1.1, Confidence: 1.7})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Mult.Confidence != 1 {
		t.Fatalf("out-of-range confidence = %v, want 1", out.Mult.Confidence)
	}
}

func TestRequireFeaturesDoesNotMutateVector(t *testing.T) {
	fv := fullVector()
	before := len(fv.Values)

	subset, err := requireFeatures(models.ModelB2C, fv, b2cRequired)
	if err != nil {
		t.Fatalf("requireFeatures: %v", err)
	}
	if len(subset) != len(b2cRequired) {
		t.Fatalf("subset size = %d, want %d", len(subset), len(b2cRequired))
	}
	subset["injected"] = 1
	if len(fv.Values) != before {
		t.Fatalf("vector mutated through subset")
	}
	if _, ok := fv.Values["injected"]; ok {
		t.Fatalf("subset aliases vector map")
	}
}
