package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	quantity     *prometheus.GaugeVec
	confidence   *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycocast_messages_sent_total",
				Help: "Total number of telemetry messages sent to backend",
			},
			[]string{"backend", "region"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycocast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycocast_decision_cache_lookups_total",
				Help: "Decision cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycocast_decisions_total",
				Help: "Fused decisions served",
			},
			[]string{"channel", "sku"},
		),
		quantity: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycocast_last_decision_quantity",
				Help: "Quantity of the last fused decision per channel and SKU",
			},
			[]string{"channel", "sku"},
		),
		confidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycocast_last_decision_confidence",
				Help: "Confidence of the last fused decision per channel and SKU",
			},
			[]string{"channel", "sku"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mycocast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a telemetry message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, region string) {
	r.messagesSent.WithLabelValues(backend, region).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a decision cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordDecision records a served decision.
func (r *Recorder) RecordDecision(channel, sku string, quantity, confidence float64) {
	r.decisions.WithLabelValues(channel, sku).Inc()
	r.quantity.WithLabelValues(channel, sku).Set(quantity)
	r.confidence.WithLabelValues(channel, sku).Set(confidence)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
