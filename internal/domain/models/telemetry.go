package models

import "time"

// TelemetrySnapshot is one intraday observation for a region: POS velocity,
// logistics delays, mandi price and weather updates. Produced by the feed,
// shipped through Kafka, stored in ClickHouse, and optionally attached
// inline to a ForecastRequest.
type TelemetrySnapshot struct {
	Region    string    `json:"region"`
	Timestamp time.Time `json:"ts"`

	MandiPricePerKg  float64 `json:"mandi_price_per_kg"`
	POSTransactions  int     `json:"pos_transactions_last_hour"`
	VehicleDelayMin  int     `json:"vehicle_delay_minutes"`
	TempC            float64 `json:"weather_now_temp"`
	Humidity         float64 `json:"weather_now_humidity"`
	DisruptionFlag   bool    `json:"logistics_disruption_flag"`
	BaselinePred     float64 `json:"intraday_baseline_pred"`
	ActualSalesSoFar float64 `json:"intraday_actual_sales_partial"`
	Event            string  `json:"intraday_event"` // "none", "heavy_rain", "strike"
}

// Age returns how old the snapshot is relative to now.
func (t *TelemetrySnapshot) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}
