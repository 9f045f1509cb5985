package modeladapter

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/pkg/config"
)

var elasticityRequired = []string{
	"price_ratio",
	"optimal_price_per_kg",
	"packaging_kg",
}

type HTTPElasticityModel struct{ base *HTTPServiceBase }

func NewHTTPElasticityModel(cfg *config.Config, obs domsvc.InferenceObserver) *HTTPElasticityModel {
	return &HTTPElasticityModel{base: NewHTTPServiceBase(cfg, obs)}
}

type multResp struct {
	Multiplier float64 `json:"multiplier"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

func (m *HTTPElasticityModel) Kind() models.ModelKind { return models.ModelElasticity }

func (m *HTTPElasticityModel) Infer(ctx context.Context, fv *models.FeatureVector) (models.ModelOutput, error) {
	start := time.Now()
	subset, err := requireFeatures(models.ModelElasticity, fv, elasticityRequired)
	if err != nil {
		m.base.observe(ctx, models.ModelElasticity, start, true)
		return models.ModelOutput{}, err
	}

	var mr multResp
	if err := m.base.PostJSON(ctx, "/elasticity/predict", pointReq{SKU: fv.SKU, Region: fv.Region, Features: subset}, &mr); err != nil {
		m.base.observe(ctx, models.ModelElasticity, start, true)
		return models.ModelOutput{}, fmt.Errorf("elasticity infer: %w", err)
	}
	out, err := normalizeMultiplier(models.ModelElasticity, mr)
	if err != nil {
		m.base.observe(ctx, models.ModelElasticity, start, true)
		return models.ModelOutput{}, err
	}
	m.base.observe(ctx, models.ModelElasticity, start, false)
	return out, nil
}

// normalizeMultiplier guards the centered-at-1.0 contract shared by the
// elasticity and intraday adapters.
func normalizeMultiplier(kind models.ModelKind, mr multResp) (models.ModelOutput, error) {
	if mr.Multiplier <= 0 {
		return models.ModelOutput{}, fmt.Errorf("%s infer: non-positive multiplier %v", kind, mr.Multiplier)
	}
	conf := mr.Confidence
	if conf <= 0 || conf > 1 {
		conf = 1
	}
	return models.ModelOutput{
		Kind:     kind,
		ModelTag: mr.Model,
		Mult:     &models.Multiplier{Factor: mr.Multiplier, Confidence: conf},
	}, nil
}

var _ domsvc.ModelAdapter = (*HTTPElasticityModel)(nil)
