package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	icache "MycoCast/internal/service/cache"
	"MycoCast/internal/service/decision"
)

type memStorage struct {
	stored   []*models.TelemetrySnapshot
	storeErr error
}

func (m *memStorage) Init(context.Context) error { return nil }

func (m *memStorage) Store(_ context.Context, s *models.TelemetrySnapshot) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stored = append(m.stored, s)
	return nil
}

func (m *memStorage) StoreBatch(_ context.Context, snaps []*models.TelemetrySnapshot) error {
	m.stored = append(m.stored, snaps...)
	return nil
}

func (m *memStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.TelemetrySnapshot, error) {
	return m.stored, nil
}

func (m *memStorage) Health(context.Context) error { return nil }
func (m *memStorage) Close() error                 { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string)                {}
func (nopMetrics) RecordError(string)                              {}
func (nopMetrics) RecordLatency(string, float64)                   {}
func (nopMetrics) RecordCacheLookup(bool)                          {}
func (nopMetrics) RecordDecision(string, string, float64, float64) {}

func TestHandleStoresAndInvalidatesRegion(t *testing.T) {
	storage := &memStorage{}
	cache := decision.New(icache.NewTTLCache(), time.Minute, nil)
	h := NewKafkaTelemetryHandler("telemetry.snapshots", storage, cache, nopMetrics{})

	// seed a cached decision for the incoming region
	key := "MUSH-250g|Pune|2026-03-05T00:00:00Z"
	if _, _, err := cache.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
		return &models.FusedDecision{SKU: "MUSH-250g", Region: "Pune", Quantity: 42}, nil
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	b, _ := json.Marshal(&models.TelemetrySnapshot{
		Region:          "Pune",
		Timestamp:       time.Now().Add(-2 * time.Second),
		POSTransactions: 51,
	})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(storage.stored) != 1 || storage.stored[0].Region != "Pune" {
		t.Fatalf("stored = %+v", storage.stored)
	}
	_, hit, err := cache.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
		return &models.FusedDecision{SKU: "MUSH-250g", Region: "Pune", Quantity: 43}, nil
	})
	if err != nil || hit {
		t.Fatalf("decision survived telemetry arrival: hit=%v err=%v", hit, err)
	}
}

func TestHandleDefaultsZeroTimestamp(t *testing.T) {
	storage := &memStorage{}
	h := NewKafkaTelemetryHandler("telemetry.snapshots", storage, nil, nopMetrics{})

	if err := h.Handle(context.Background(), []byte(`{"region":"Nashik"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if storage.stored[0].Timestamp.IsZero() {
		t.Fatalf("zero timestamp not defaulted")
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h := NewKafkaTelemetryHandler("telemetry.snapshots", &memStorage{}, nil, nopMetrics{})
	if err := h.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatalf("malformed payload accepted")
	}
}

func TestHandlePropagatesStoreError(t *testing.T) {
	boom := errors.New("clickhouse down")
	h := NewKafkaTelemetryHandler("telemetry.snapshots", &memStorage{storeErr: boom}, nil, nopMetrics{})
	b, _ := json.Marshal(&models.TelemetrySnapshot{Region: "Pune", Timestamp: time.Now()})
	if err := h.Handle(context.Background(), b); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
