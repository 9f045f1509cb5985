package usecase

import (
	"context"
	"encoding/json"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	"MycoCast/internal/service/decision"
	pkgkafka "MycoCast/pkg/kafka"
)

// KafkaTelemetryHandler consumes telemetry messages, writes them to storage
// and drops cached decisions for the affected region, so the serving path
// never returns a decision computed before the freshest known telemetry.
type KafkaTelemetryHandler struct {
	topic   string
	storage domrepo.Storage
	cache   *decision.Cache
	metrics domrepo.Metrics
}

func NewKafkaTelemetryHandler(topic string, storage domrepo.Storage, cache *decision.Cache, metrics domrepo.Metrics) *KafkaTelemetryHandler {
	return &KafkaTelemetryHandler{topic: topic, storage: storage, cache: cache, metrics: metrics}
}

func (h *KafkaTelemetryHandler) Topic() string { return h.topic }

// Handle processes one telemetry message off the wire.
func (h *KafkaTelemetryHandler) Handle(ctx context.Context, b []byte) error {
	var t models.TelemetrySnapshot
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &t)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", t.Region)

	if h.cache != nil {
		h.cache.InvalidateRegion(t.Region)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTelemetryHandler)(nil)
