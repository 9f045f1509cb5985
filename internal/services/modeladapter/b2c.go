package modeladapter

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/pkg/config"
)

var b2cRequired = []string{
	"lag_1_sales",
	"panchang_fasting_flag",
	"mandi_price_per_kg",
	"temp_max_c",
}

type HTTPB2CForecaster struct{ base *HTTPServiceBase }

func NewHTTPB2CForecaster(cfg *config.Config, obs domsvc.InferenceObserver) *HTTPB2CForecaster {
	return &HTTPB2CForecaster{base: NewHTTPServiceBase(cfg, obs)}
}

type b2cResp struct {
	Quantity float64 `json:"quantity"`
	StdDev   float64 `json:"stddev"`
	Model    string  `json:"model"`
}

func (f *HTTPB2CForecaster) Kind() models.ModelKind { return models.ModelB2C }

func (f *HTTPB2CForecaster) Infer(ctx context.Context, fv *models.FeatureVector) (models.ModelOutput, error) {
	start := time.Now()
	subset, err := requireFeatures(models.ModelB2C, fv, b2cRequired)
	if err != nil {
		f.base.observe(ctx, models.ModelB2C, start, true)
		return models.ModelOutput{}, err
	}

	var pr b2cResp
	if err := f.base.PostJSONWithRetry(ctx, "/b2c/predict", pointReq{SKU: fv.SKU, Region: fv.Region, Features: subset}, &pr, 2); err != nil {
		f.base.observe(ctx, models.ModelB2C, start, true)
		return models.ModelOutput{}, fmt.Errorf("b2c infer: %w", err)
	}
	if pr.Quantity < 0 {
		pr.Quantity = 0
	}
	out := models.ModelOutput{
		Kind:     models.ModelB2C,
		ModelTag: pr.Model,
		Point:    &models.PointEstimate{Quantity: pr.Quantity, StdDev: pr.StdDev},
	}
	f.base.observe(ctx, models.ModelB2C, start, false)
	return out, nil
}

var _ domsvc.ModelAdapter = (*HTTPB2CForecaster)(nil)
