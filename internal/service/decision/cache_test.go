package decision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MycoCast/internal/domain/models"
	icache "MycoCast/internal/service/cache"
)

func testDecision(sku, region string) *models.FusedDecision {
	return &models.FusedDecision{
		SKU:        sku,
		Region:     region,
		Channel:    models.ChannelB2C,
		Quantity:   42,
		Confidence: 0.9,
		ComputedAt: time.Now(),
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(icache.NewTTLCache(), time.Minute, nil)

	const callers = 25
	var calls int64
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*models.FusedDecision, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dec, _, err := c.GetOrCompute(context.Background(), "MUSH-250g|Pune|2026-03-05T00:00:00Z", func(context.Context) (*models.FusedDecision, error) {
				atomic.AddInt64(&calls, 1)
				<-release
				return testDecision("MUSH-250g", "Pune"), nil
			})
			results[i] = dec
			errs[i] = err
		}(i)
	}

	// let all callers reach the flight map before the leader finishes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("compute ran %d times, want 1", got)
	}
	if got := c.Computations(); got != 1 {
		t.Fatalf("Computations() = %d, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] == nil || results[i].Quantity != 42 {
			t.Fatalf("caller %d got %+v", i, results[i])
		}
	}
}

func TestGetOrComputeCachesAndExpires(t *testing.T) {
	c := New(icache.NewTTLCache(), 30*time.Millisecond, nil)
	key := "MUSH-250g|Pune|2026-03-05T00:00:00Z"
	fn := func(context.Context) (*models.FusedDecision, error) {
		return testDecision("MUSH-250g", "Pune"), nil
	}

	if _, hit, err := c.GetOrCompute(context.Background(), key, fn); err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	if _, hit, err := c.GetOrCompute(context.Background(), key, fn); err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v, want hit", hit, err)
	}
	if got := c.Computations(); got != 1 {
		t.Fatalf("computations = %d, want 1", got)
	}

	time.Sleep(50 * time.Millisecond)
	if _, hit, err := c.GetOrCompute(context.Background(), key, fn); err != nil || hit {
		t.Fatalf("post-expiry call: hit=%v err=%v, want recompute", hit, err)
	}
	if got := c.Computations(); got != 2 {
		t.Fatalf("computations after expiry = %d, want 2", got)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(icache.NewTTLCache(), time.Minute, nil)
	key := "MUSH-5kg|Nashik|2026-03-05T00:00:00Z"
	boom := errors.New("feature store down")

	_, _, err := c.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}

	// nothing stored: the next caller computes again and succeeds
	dec, hit, err := c.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
		return testDecision("MUSH-5kg", "Nashik"), nil
	})
	if err != nil || hit {
		t.Fatalf("retry: hit=%v err=%v", hit, err)
	}
	if dec.SKU != "MUSH-5kg" {
		t.Fatalf("retry decision = %+v", dec)
	}
	if got := c.Computations(); got != 2 {
		t.Fatalf("computations = %d, want 2", got)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c := New(icache.NewTTLCache(), time.Minute, nil)
	key := "MUSH-250g|Pune|2026-03-05T00:00:00Z"
	fn := func(context.Context) (*models.FusedDecision, error) {
		return testDecision("MUSH-250g", "Pune"), nil
	}

	if _, _, err := c.GetOrCompute(context.Background(), key, fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := c.Invalidate(key); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, hit, err := c.GetOrCompute(context.Background(), key, fn); err != nil || hit {
		t.Fatalf("post-invalidate: hit=%v err=%v, want recompute", hit, err)
	}
}

func TestInvalidateRegion(t *testing.T) {
	c := New(icache.NewTTLCache(), time.Minute, nil)
	seed := func(sku, region string) {
		key := sku + "|" + region + "|2026-03-05T00:00:00Z"
		if _, _, err := c.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
			return testDecision(sku, region), nil
		}); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	seed("MUSH-250g", "Pune")
	seed("MUSH-5kg", "Pune")
	seed("MUSH-250g", "Nashik")

	if n := c.InvalidateRegion("Pune"); n != 2 {
		t.Fatalf("invalidated %d keys, want 2", n)
	}

	// Pune entries recompute, Nashik still served from cache
	_, hit, err := c.GetOrCompute(context.Background(), "MUSH-250g|Pune|2026-03-05T00:00:00Z", func(context.Context) (*models.FusedDecision, error) {
		return testDecision("MUSH-250g", "Pune"), nil
	})
	if err != nil || hit {
		t.Fatalf("pune after invalidate: hit=%v err=%v", hit, err)
	}
	_, hit, err = c.GetOrCompute(context.Background(), "MUSH-250g|Nashik|2026-03-05T00:00:00Z", func(context.Context) (*models.FusedDecision, error) {
		t.Fatalf("nashik recomputed after pune invalidation")
		return nil, nil
	})
	if err != nil || !hit {
		t.Fatalf("nashik: hit=%v err=%v, want cache hit", hit, err)
	}

	if n := c.InvalidateRegion("Pune"); n != 0 {
		t.Fatalf("second region invalidation dropped %d keys, want 0", n)
	}
}

func TestGetOrComputeContextCancelledWaiter(t *testing.T) {
	c := New(icache.NewTTLCache(), time.Minute, nil)
	key := "MUSH-250g|Pune|2026-03-05T00:00:00Z"
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = c.GetOrCompute(context.Background(), key, func(context.Context) (*models.FusedDecision, error) {
			<-release
			return testDecision("MUSH-250g", "Pune"), nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.GetOrCompute(ctx, key, func(context.Context) (*models.FusedDecision, error) {
		return testDecision("MUSH-250g", "Pune"), nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
