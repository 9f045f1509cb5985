package usecase

import (
	"MycoCast/internal/domain/models"
	drepo "MycoCast/internal/domain/repository"
	mid "MycoCast/internal/middleware"
	"context"
)

// TelemetryCollector collects snapshots from the POS feed and processes them.
type TelemetryCollector struct {
	stream  drepo.TelemetryStream
	proc    *TelemetryProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewTelemetryCollector creates a new TelemetryCollector instance.
func NewTelemetryCollector(stream drepo.TelemetryStream, proc *TelemetryProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *TelemetryCollector {
	return &TelemetryCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the POS feed stream is connected.
func (c *TelemetryCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TelemetryCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	teleCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, teleCh, errCh)
	return nil
}

func (c *TelemetryCollector) consume(ctx context.Context, teleCh <-chan *models.TelemetrySnapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-teleCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

func (c *TelemetryCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying TelemetryProcessor for lifecycle management.
func (c *TelemetryCollector) Processor() *TelemetryProcessor { return c.proc }

// Shutdown stops pipeline and closes stream.
func (c *TelemetryCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
