package features

import (
	"math"
	"testing"

	"MycoCast/internal/domain/models"
)

func TestPackagingKg(t *testing.T) {
	cases := []struct {
		sku  string
		want float64
	}{
		{"MUSH-200g", 0.2},
		{"MUSH-250g", 0.25},
		{"MUSH-1kg", 1},
		{"MUSH-5kg", 5},
		{"MUSH-2.5kg", 2.5},
		{"OYSTER-PREMIUM-500g", 0.5},
		{"MUSH", 0},
		{"MUSH-", 0},
		{"MUSH-bulk", 0},
		{"MUSH-xg", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := PackagingKg(tc.sku); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("PackagingKg(%q) = %v, want %v", tc.sku, got, tc.want)
		}
	}
}

func TestOptimalPrice(t *testing.T) {
	// retail 250g pack: 140*1.5 + 0.25*10
	if got := OptimalPrice(140, 1.5, 0.25, 10); math.Abs(got-212.5) > 1e-9 {
		t.Fatalf("retail price = %v, want 212.5", got)
	}
	// wholesale 5kg pack: 140*1.2 + 5*10
	if got := OptimalPrice(140, 1.2, 5, 10); math.Abs(got-218) > 1e-9 {
		t.Fatalf("wholesale price = %v, want 218", got)
	}
}

func TestTelemetryValues(t *testing.T) {
	if TelemetryValues(nil) != nil {
		t.Fatalf("nil snapshot should flatten to nil")
	}

	vals := TelemetryValues(&models.TelemetrySnapshot{
		Region:           "Pune",
		MandiPricePerKg:  152,
		POSTransactions:  37,
		VehicleDelayMin:  12,
		TempC:            33.5,
		Humidity:         0.61,
		DisruptionFlag:   true,
		BaselinePred:     118,
		ActualSalesSoFar: 64,
	})
	want := map[string]float64{
		"mandi_price_now_per_kg":        152,
		"pos_transactions_last_hour":    37,
		"vehicle_delay_minutes":         12,
		"weather_now_temp":              33.5,
		"weather_now_humidity":          0.61,
		"logistics_disruption_flag":     1,
		"intraday_baseline_pred":        118,
		"intraday_actual_sales_partial": 64,
	}
	if len(vals) != len(want) {
		t.Fatalf("got %d keys, want %d", len(vals), len(want))
	}
	for k, v := range want {
		if vals[k] != v {
			t.Fatalf("%s = %v, want %v", k, vals[k], v)
		}
	}

	calm := TelemetryValues(&models.TelemetrySnapshot{Region: "Pune"})
	if calm["logistics_disruption_flag"] != 0 {
		t.Fatalf("disruption flag = %v, want 0", calm["logistics_disruption_flag"])
	}
}
