package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.TelemetrySnapshot) error
}

// RealtimePipeline is a middleware between the POS feed and the backend.
// It validates, throttles per region, optionally transforms, and buffers
// when downstream is unavailable.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.TelemetrySnapshot
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-region last accepted time
	// simple format transform hook (optional)
	transform func(*models.TelemetrySnapshot) *models.TelemetrySnapshot
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max snapshots per second per region.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per region
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.TelemetrySnapshot, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.TelemetrySnapshot, p.bufSize)
	}
	// metrics hooks using domain metrics if available
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(region string) { p.metrics.RecordError("pipeline_throttle_" + region) }
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a snapshot downstream,
// buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.TelemetrySnapshot) error {
	start := time.Now()
	if err := validateSnapshot(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateSnapshot(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.Region, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(t.Region)
		}
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- t:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// WithTransform sets a transformation hook to modify snapshot format.
func WithTransform(fn func(*models.TelemetrySnapshot) *models.TelemetrySnapshot) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func validateSnapshot(t *models.TelemetrySnapshot) error {
	if t == nil {
		return fmt.Errorf("snapshot nil")
	}
	if t.Region == "" {
		return fmt.Errorf("region empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.MandiPricePerKg < 0 || t.ActualSalesSoFar < 0 {
		return fmt.Errorf("negative price/sales")
	}
	return nil
}

func (p *RealtimePipeline) allow(region string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	// simple throttle: ensure at most maxRPS per second
	last := p.lastSeen[region]
	if last.IsZero() {
		p.lastSeen[region] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[region] = now
	return true
}
