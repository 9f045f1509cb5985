package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
)

func TestSessionTrailOrdered(t *testing.T) {
	r := New(nil)
	ctx, session := r.Begin(context.Background())

	if FromContext(ctx) != session {
		t.Fatalf("context does not carry the session")
	}

	session.Trace("base", "b2c estimate 120.00 units")
	session.Trace("elasticity", "multiplier 1.0800")
	session.Trace("intraday", "multiplier 0.9500")

	exp := session.Explanation()
	if len(exp.Trail) != 3 {
		t.Fatalf("trail length = %d, want 3", len(exp.Trail))
	}
	if exp.Trail[0].Stage != "base" || exp.Trail[2].Stage != "intraday" {
		t.Fatalf("trail out of order: %+v", exp.Trail)
	}

	// snapshot, not a view
	session.Trace("fusion", "late event")
	if len(exp.Trail) != 3 {
		t.Fatalf("explanation mutated after snapshot")
	}
}

func TestObserveInferenceRoutesToSession(t *testing.T) {
	r := New(nil)
	ctx, session := r.Begin(context.Background())

	r.ObserveInference(ctx, models.AdapterLatency{Kind: models.ModelB2C, Duration: 20 * time.Millisecond})
	r.ObserveInference(ctx, models.AdapterLatency{Kind: models.ModelIntraday, Duration: 5 * time.Millisecond, Failed: true})

	exp := session.Explanation()
	if len(exp.Latencies) != 2 {
		t.Fatalf("latencies = %d, want 2", len(exp.Latencies))
	}
	if exp.Latencies[1].Kind != models.ModelIntraday || !exp.Latencies[1].Failed {
		t.Fatalf("latency = %+v", exp.Latencies[1])
	}
}

func TestObserveInferenceWithoutSession(t *testing.T) {
	r := New(nil)
	// no session in context: must be a silent no-op
	r.ObserveInference(context.Background(), models.AdapterLatency{Kind: models.ModelB2B})
}

func TestNilSessionSafe(t *testing.T) {
	var s *Session
	s.Trace("base", "ignored")
	if exp := s.Explanation(); len(exp.Trail) != 0 {
		t.Fatalf("nil session produced trail: %+v", exp)
	}
}

func TestSessionConcurrentUse(t *testing.T) {
	r := New(nil)
	ctx, session := r.Begin(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				session.Trace("stage", "event")
				r.ObserveInference(ctx, models.AdapterLatency{Kind: models.ModelB2C})
			}
		}()
	}
	wg.Wait()

	exp := session.Explanation()
	if len(exp.Trail) != 400 || len(exp.Latencies) != 400 {
		t.Fatalf("trail=%d latencies=%d, want 400 each", len(exp.Trail), len(exp.Latencies))
	}
}
