package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	pkgch "MycoCast/pkg/clickhouse"
	applogger "MycoCast/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse. Both queries
// are point-in-time: rows newer than the requested as-of never surface, so
// a forecast can be replayed against the data that existed at the time.
type CHFeatureStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHFeatureStore) GetFeatures(ctx context.Context, sku, region string, asOf time.Time) (*models.FeatureVector, error) {
	start := time.Now()
	const q = `
        SELECT as_of, mandi_price_per_kg, wedding_density_30d, panchang_fasting_flag,
               festival_flag, temp_max_c, lag_1_sales, lag_7_sales_mean
        FROM mycocast.historical_features
        WHERE sku = ? AND region = ? AND as_of <= ?
        ORDER BY as_of DESC
        LIMIT 1
    `
	var (
		rowAsOf                  time.Time
		mandi, tempMax           float64
		weddingDensity           float64
		fastingFlag, festival    uint8
		lag1Sales, lag7SalesMean float64
	)
	err := s.db.QueryRowContext(ctx, q, sku, region, asOf).Scan(
		&rowAsOf, &mandi, &weddingDensity, &fastingFlag,
		&festival, &tempMax, &lag1Sales, &lag7SalesMean,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no feature row for %s/%s as of %s",
			models.ErrFeatureUnavailable, sku, region, asOf.Format(time.RFC3339))
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_features query error",
				applogger.String("sku", sku),
				applogger.String("region", region),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get features: %w", err)
	}

	fv := &models.FeatureVector{
		SKU:    sku,
		Region: region,
		AsOf:   rowAsOf,
		Values: map[string]float64{
			"mandi_price_per_kg":    mandi,
			"wedding_density_30d":   weddingDensity,
			"panchang_fasting_flag": float64(fastingFlag),
			"festival_flag":         float64(festival),
			"temp_max_c":            tempMax,
			"lag_1_sales":           lag1Sales,
			"lag_7_sales_mean":      lag7SalesMean,
		},
	}
	if s.l != nil {
		s.l.Info("clickhouse get_features ok",
			applogger.String("sku", sku),
			applogger.String("region", region),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return fv, nil
}

func (s *CHFeatureStore) GetLatestTelemetry(ctx context.Context, region string, asOf time.Time) (*models.TelemetrySnapshot, error) {
	const q = `
        SELECT ts, region, mandi_price_per_kg, pos_transactions_last_hour,
               vehicle_delay_minutes, weather_now_temp, weather_now_humidity,
               logistics_disruption_flag, intraday_baseline_pred,
               intraday_actual_sales_partial, intraday_event
        FROM mycocast.intraday_telemetry
        WHERE region = ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT 1
    `
	var (
		t          models.TelemetrySnapshot
		disruption uint8
	)
	err := s.db.QueryRowContext(ctx, q, region, asOf).Scan(
		&t.Timestamp, &t.Region, &t.MandiPricePerKg, &t.POSTransactions,
		&t.VehicleDelayMin, &t.TempC, &t.Humidity,
		&disruption, &t.BaselinePred, &t.ActualSalesSoFar, &t.Event,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no telemetry for region %s as of %s", region, asOf.Format(time.RFC3339))
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_telemetry query error",
				applogger.String("region", region),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("latest telemetry: %w", err)
	}
	t.DisruptionFlag = disruption != 0
	return &t, nil
}
