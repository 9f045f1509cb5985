package usecase

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	drepo "MycoCast/internal/domain/repository"
)

// TelemetryProcessor routes telemetry snapshots to the configured backend.
type TelemetryProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
	batchSz int
	batchTO time.Duration
}

// NewTelemetryProcessor creates a new TelemetryProcessor instance.
func NewTelemetryProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *TelemetryProcessor {
	return &TelemetryProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// Process routes a single snapshot to the configured backend.
func (p *TelemetryProcessor) Process(ctx context.Context, t *models.TelemetrySnapshot) error {
	if t == nil {
		return fmt.Errorf("telemetry snapshot is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process telemetry: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, t.Region)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple snapshots in one backend call.
func (p *TelemetryProcessor) ProcessBatch(ctx context.Context, snaps []*models.TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, snaps)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, snaps)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, t := range snaps {
		p.metrics.RecordMessageSent(p.backend, t.Region)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *TelemetryProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
