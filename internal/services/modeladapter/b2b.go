package modeladapter

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/pkg/config"
)

// b2bRequired is the feature subset the bulk-channel model was trained on.
// packaging_kg is needed client-side to normalize kg output into units.
var b2bRequired = []string{
	"lag_7_sales_mean",
	"wedding_density_30d",
	"mandi_price_per_kg",
	"festival_flag",
	"packaging_kg",
}

type HTTPB2BForecaster struct{ base *HTTPServiceBase }

func NewHTTPB2BForecaster(cfg *config.Config, obs domsvc.InferenceObserver) *HTTPB2BForecaster {
	return &HTTPB2BForecaster{base: NewHTTPServiceBase(cfg, obs)}
}

type pointReq struct {
	SKU      string             `json:"sku"`
	Region   string             `json:"region"`
	Features map[string]float64 `json:"features"`
}

type pointResp struct {
	QuantityKg float64 `json:"quantity_kg"`
	StdDevKg   float64 `json:"stddev_kg"`
	Model      string  `json:"model"`
}

func (f *HTTPB2BForecaster) Kind() models.ModelKind { return models.ModelB2B }

func (f *HTTPB2BForecaster) Infer(ctx context.Context, fv *models.FeatureVector) (models.ModelOutput, error) {
	start := time.Now()
	subset, err := requireFeatures(models.ModelB2B, fv, b2bRequired)
	if err != nil {
		f.base.observe(ctx, models.ModelB2B, start, true)
		return models.ModelOutput{}, err
	}

	var pr pointResp
	if err := f.base.PostJSONWithRetry(ctx, "/b2b/predict", pointReq{SKU: fv.SKU, Region: fv.Region, Features: subset}, &pr, 2); err != nil {
		f.base.observe(ctx, models.ModelB2B, start, true)
		return models.ModelOutput{}, fmt.Errorf("b2b infer: %w", err)
	}

	// The bulk model predicts kg; serving works in units.
	pkg := subset["packaging_kg"]
	if pkg <= 0 {
		f.base.observe(ctx, models.ModelB2B, start, true)
		return models.ModelOutput{}, fmt.Errorf("b2b infer: invalid packaging_kg %v", pkg)
	}
	out := models.ModelOutput{
		Kind:     models.ModelB2B,
		ModelTag: pr.Model,
		Point: &models.PointEstimate{
			Quantity: pr.QuantityKg / pkg,
			StdDev:   pr.StdDevKg / pkg,
		},
	}
	f.base.observe(ctx, models.ModelB2B, start, false)
	return out, nil
}

var _ domsvc.ModelAdapter = (*HTTPB2BForecaster)(nil)
