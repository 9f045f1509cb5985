package models

// Requests for the decision HTTP endpoints. Defined in domain for consistency and reuse.

type DecideRequest struct {
	SKU           string   `json:"sku" validate:"required"`
	Region        string   `json:"region" validate:"required"`
	Channel       string   `json:"channel" default:"B2C" validate:"oneof=B2B B2C"`
	Bucket        string   `json:"bucket" validate:"required"` // RFC3339 or unix seconds
	Granularity   string   `json:"granularity" default:"day" validate:"oneof=hour day"`
	PriceOverride *float64 `json:"price_override,omitempty" validate:"omitempty,gt=0"`

	Telemetry *TelemetrySnapshot `json:"telemetry,omitempty"`
}

type InvalidateRequest struct {
	SKU         string `json:"sku" validate:"required"`
	Region      string `json:"region" validate:"required"`
	Bucket      string `json:"bucket" validate:"required"`
	Granularity string `json:"granularity" default:"day" validate:"oneof=hour day"`
}
