package models

import (
	"fmt"
	"time"
)

// Channel identifies the demand channel a forecast targets.
type Channel string

const (
	ChannelB2B Channel = "B2B"
	ChannelB2C Channel = "B2C"
)

// ModelKind identifies one of the four trained model collaborators.
type ModelKind string

const (
	ModelB2B        ModelKind = "b2b"
	ModelB2C        ModelKind = "b2c"
	ModelElasticity ModelKind = "elasticity"
	ModelIntraday   ModelKind = "intraday"
)

// ForecastRequest identifies a (sku, region, bucket) triple plus optional
// price override and inline telemetry. Immutable once constructed.
type ForecastRequest struct {
	SKU         string
	Region      string
	Channel     Channel
	Bucket      time.Time // start of the target time-bucket
	Granularity string    // "hour" | "day"

	PriceOverride *float64 // offered price per kg; nil means list price
	Telemetry     *TelemetrySnapshot

	RequestedAt time.Time
}

// Key returns the decision cache key for this request.
func (r *ForecastRequest) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.SKU, r.Region, r.Bucket.UTC().Format(time.RFC3339))
}

// FeatureVector maps named features to values, tagged with an as-of
// timestamp. Owned by the resolver; adapters read it, never write it.
type FeatureVector struct {
	SKU    string
	Region string
	AsOf   time.Time
	Values map[string]float64
	// Partial marks a vector missing its realtime signals. Fusion proceeds
	// in degraded mode rather than failing.
	Partial bool
}

// Get returns a feature value and whether it is present.
func (v *FeatureVector) Get(name string) (float64, bool) {
	val, ok := v.Values[name]
	return val, ok
}

// PointEstimate is an absolute demand forecast in units.
type PointEstimate struct {
	Quantity float64
	StdDev   float64
}

// Multiplier is a dimensionless correction factor centered at 1.0.
type Multiplier struct {
	Factor     float64
	Confidence float64
}

// ModelOutput is a tagged variant: exactly one of Point or Mult is set,
// determined by the producing model kind.
type ModelOutput struct {
	Kind     ModelKind
	ModelTag string // identifying tag of the trained artifact, for provenance
	Point    *PointEstimate
	Mult     *Multiplier
}

// StageStatus records how a fusion stage participated in a decision.
type StageStatus string

const (
	StageApplied    StageStatus = "applied"
	StageSkipped    StageStatus = "skipped"
	StageNotApplied StageStatus = "not-applied"
	StageFallback   StageStatus = "fallback"
)

// Contribution is one provenance record: which stage ran, with what weight
// and multiplier, and why it was skipped if it was.
type Contribution struct {
	Stage      string       `json:"stage"` // "base", "elasticity", "intraday"
	Kind       ModelKind    `json:"kind"`
	Status     StageStatus  `json:"status"`
	Weight     float64      `json:"weight"`
	Multiplier float64      `json:"multiplier"`
	Reason     string       `json:"reason,omitempty"`
	Raw        *ModelOutput `json:"raw,omitempty"`
}

// FusedDecision is the final output of the fusion engine. Never mutated
// after creation; cached by request key.
type FusedDecision struct {
	SKU     string    `json:"sku"`
	Region  string    `json:"region"`
	Channel Channel   `json:"channel"`
	Bucket  time.Time `json:"bucket"`

	Quantity   float64 `json:"quantity"`   // recommended units, >= 0
	UnitPrice  float64 `json:"unit_price"` // recommended price per kg
	Confidence float64 `json:"confidence"` // in [0,1]
	Clamped    bool    `json:"clamped,omitempty"`

	Contributions []Contribution `json:"contributions"`
	ComputedAt    time.Time      `json:"computed_at"`
}

// AdapterLatency is one latency/usage observation emitted per adapter call.
type AdapterLatency struct {
	Kind     ModelKind     `json:"kind"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed,omitempty"`
}

// TraceEvent is one ordered entry of the explanation trail.
type TraceEvent struct {
	Stage  string    `json:"stage"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Explanation is the best-effort audit trail returned alongside a decision.
// An empty explanation is valid; explainability never fails a request.
type Explanation struct {
	Trail     []TraceEvent     `json:"trail,omitempty"`
	Latencies []AdapterLatency `json:"latencies,omitempty"`
	CacheHit  bool             `json:"cache_hit"`
}
