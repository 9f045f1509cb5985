package features

import (
	"strconv"
	"strings"

	"MycoCast/internal/domain/models"
)

// PackagingKg parses the pack size out of a SKU id like "MUSH-200g" or
// "MUSH-5kg". Returns 0 when the SKU does not encode a size.
func PackagingKg(sku string) float64 {
	i := strings.LastIndex(sku, "-")
	if i < 0 || i == len(sku)-1 {
		return 0
	}
	s := strings.ToLower(sku[i+1:])
	switch {
	case strings.HasSuffix(s, "kg"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "kg"), 64)
		if err != nil {
			return 0
		}
		return v
	case strings.HasSuffix(s, "g"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "g"), 64)
		if err != nil {
			return 0
		}
		return v / 1000
	default:
		return 0
	}
}

// OptimalPrice computes the list price per kg: mandi price with channel
// markup plus a packaging premium for small packs.
func OptimalPrice(mandiPerKg, markup, pkgKg, premiumPerKg float64) float64 {
	return mandiPerKg*markup + pkgKg*premiumPerKg
}

// TelemetryValues flattens a snapshot into named features for the intraday
// model. Keys follow the telemetry wire schema.
func TelemetryValues(t *models.TelemetrySnapshot) map[string]float64 {
	if t == nil {
		return nil
	}
	out := map[string]float64{
		"mandi_price_now_per_kg":        t.MandiPricePerKg,
		"pos_transactions_last_hour":    float64(t.POSTransactions),
		"vehicle_delay_minutes":         float64(t.VehicleDelayMin),
		"weather_now_temp":              t.TempC,
		"weather_now_humidity":          t.Humidity,
		"intraday_baseline_pred":        t.BaselinePred,
		"intraday_actual_sales_partial": t.ActualSalesSoFar,
	}
	if t.DisruptionFlag {
		out["logistics_disruption_flag"] = 1
	} else {
		out["logistics_disruption_flag"] = 0
	}
	return out
}
