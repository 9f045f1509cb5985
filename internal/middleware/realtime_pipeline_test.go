package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
)

type countingProc struct {
	got []*models.TelemetrySnapshot
	err error
}

func (p *countingProc) Process(_ context.Context, t *models.TelemetrySnapshot) error {
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, t)
	return nil
}

type countMetrics struct {
	errs map[string]int
}

func (m *countMetrics) RecordMessageSent(string, string) {}
func (m *countMetrics) RecordError(kind string) {
	if m.errs == nil {
		m.errs = make(map[string]int)
	}
	m.errs[kind]++
}
func (m *countMetrics) RecordLatency(string, float64)                   {}
func (m *countMetrics) RecordCacheLookup(bool)                          {}
func (m *countMetrics) RecordDecision(string, string, float64, float64) {}

func snap(region string) *models.TelemetrySnapshot {
	return &models.TelemetrySnapshot{Region: region, Timestamp: time.Now(), POSTransactions: 10}
}

func TestPipelineForwardsValidSnapshot(t *testing.T) {
	proc := &countingProc{}
	p := NewRealtimePipeline(proc, &countMetrics{}, WithMaxRPS(1000))

	if err := p.Process(context.Background(), snap("Pune")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(proc.got) != 1 || proc.got[0].Region != "Pune" {
		t.Fatalf("forwarded = %+v", proc.got)
	}
}

func TestPipelineRejectsInvalidSnapshots(t *testing.T) {
	proc := &countingProc{}
	p := NewRealtimePipeline(proc, &countMetrics{})

	cases := []*models.TelemetrySnapshot{
		nil,
		{Timestamp: time.Now()},
		{Region: "Pune"},
		{Region: "Pune", Timestamp: time.Now(), MandiPricePerKg: -1},
		{Region: "Pune", Timestamp: time.Now(), ActualSalesSoFar: -5},
	}
	for i, s := range cases {
		if err := p.Process(context.Background(), s); err == nil {
			t.Fatalf("case %d: invalid snapshot accepted", i)
		}
	}
	if len(proc.got) != 0 {
		t.Fatalf("invalid snapshots reached downstream: %+v", proc.got)
	}
}

func TestPipelineThrottlesPerRegion(t *testing.T) {
	proc := &countingProc{}
	m := &countMetrics{}
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	// first snapshot per region passes, an immediate second is dropped
	if err := p.Process(context.Background(), snap("Pune")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := p.Process(context.Background(), snap("Pune")); err != nil {
		t.Fatalf("throttled snapshot errored: %v", err)
	}
	// another region is throttled independently
	if err := p.Process(context.Background(), snap("Nashik")); err != nil {
		t.Fatalf("other region: %v", err)
	}

	if len(proc.got) != 2 {
		t.Fatalf("forwarded %d snapshots, want 2", len(proc.got))
	}
	if m.errs["pipeline_throttle"] != 1 {
		t.Fatalf("throttle count = %d, want 1", m.errs["pipeline_throttle"])
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &countingProc{err: errors.New("backend down")}
	m := &countMetrics{}
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1000), WithBufferSize(4))

	if err := p.Process(context.Background(), snap("Pune")); err == nil {
		t.Fatalf("downstream error swallowed")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffer depth = %d, want 1", len(p.bufCh))
	}

	// flusher drains the buffer once downstream recovers
	proc.err = nil
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(proc.got) == 0 {
		select {
		case <-deadline:
			t.Fatalf("buffered snapshot never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPipelineTransformHook(t *testing.T) {
	proc := &countingProc{}
	p := NewRealtimePipeline(proc, &countMetrics{}, WithMaxRPS(1000), WithTransform(func(s *models.TelemetrySnapshot) *models.TelemetrySnapshot {
		c := *s
		c.Event = "heavy_rain"
		return &c
	}))

	if err := p.Process(context.Background(), snap("Pune")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.got[0].Event != "heavy_rain" {
		t.Fatalf("transform not applied: %+v", proc.got[0])
	}
}
