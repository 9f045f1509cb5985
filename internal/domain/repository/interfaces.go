package repository

import (
	"context"
	"time"

	"MycoCast/internal/domain/models"
)

type TelemetryStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.TelemetrySnapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, s *models.TelemetrySnapshot) error
	PublishBatch(ctx context.Context, snaps []*models.TelemetrySnapshot) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, s *models.TelemetrySnapshot) error
	StoreBatch(ctx context.Context, snaps []*models.TelemetrySnapshot) error
	Query(ctx context.Context, region string, from, to time.Time, limit int) ([]*models.TelemetrySnapshot, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, region string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCacheLookup(hit bool)
	RecordDecision(channel, sku string, quantity, confidence float64)
}
