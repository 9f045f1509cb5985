package modeladapter

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/pkg/config"
)

var intradayRequired = []string{
	"pos_transactions_last_hour",
	"intraday_baseline_pred",
	"intraday_actual_sales_partial",
}

type HTTPIntradayModel struct{ base *HTTPServiceBase }

func NewHTTPIntradayModel(cfg *config.Config, obs domsvc.InferenceObserver) *HTTPIntradayModel {
	return &HTTPIntradayModel{base: NewHTTPServiceBase(cfg, obs)}
}

func (m *HTTPIntradayModel) Kind() models.ModelKind { return models.ModelIntraday }

func (m *HTTPIntradayModel) Infer(ctx context.Context, fv *models.FeatureVector) (models.ModelOutput, error) {
	start := time.Now()
	subset, err := requireFeatures(models.ModelIntraday, fv, intradayRequired)
	if err != nil {
		m.base.observe(ctx, models.ModelIntraday, start, true)
		return models.ModelOutput{}, err
	}
	// optional context signals; sent when present, never required
	for _, n := range []string{"vehicle_delay_minutes", "weather_now_temp", "weather_now_humidity"} {
		if v, ok := fv.Get(n); ok {
			subset[n] = v
		}
	}

	var mr multResp
	if err := m.base.PostJSON(ctx, "/intraday/correct", pointReq{SKU: fv.SKU, Region: fv.Region, Features: subset}, &mr); err != nil {
		m.base.observe(ctx, models.ModelIntraday, start, true)
		return models.ModelOutput{}, fmt.Errorf("intraday infer: %w", err)
	}
	out, err := normalizeMultiplier(models.ModelIntraday, mr)
	if err != nil {
		m.base.observe(ctx, models.ModelIntraday, start, true)
		return models.ModelOutput{}, err
	}
	m.base.observe(ctx, models.ModelIntraday, start, false)
	return out, nil
}

var _ domsvc.ModelAdapter = (*HTTPIntradayModel)(nil)
