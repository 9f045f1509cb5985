package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	icache "MycoCast/internal/service/cache"
)

// ComputeFunc produces a fused decision for one key.
type ComputeFunc func(ctx context.Context) (*models.FusedDecision, error)

type call struct {
	done chan struct{}
	dec  *models.FusedDecision
	err  error
}

// Cache memoizes fused decisions per (sku, region, bucket) key with TTL,
// guaranteeing at most one concurrent computation per key: concurrent
// callers for the same key await the in-flight result instead of
// duplicating work. A failed computation is delivered to every waiter and
// nothing is stored, so the next caller retries cleanly.
type Cache struct {
	store   icache.BytesCache
	ttl     time.Duration
	metrics domrepo.Metrics

	mu     sync.Mutex
	flight map[string]*call

	// byRegion indexes stored keys by region so telemetry arrival can drop
	// every decision the region touches. Entries outliving their TTL are
	// harmless: deleting an expired key is a no-op.
	byRegion map[string]map[string]struct{}

	computations uint64 // probe for tests and metrics
}

func New(store icache.BytesCache, ttl time.Duration, metrics domrepo.Metrics) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		metrics:  metrics,
		flight:   make(map[string]*call),
		byRegion: make(map[string]map[string]struct{}),
	}
}

// GetOrCompute returns the cached decision for key, or runs fn exactly once
// across all concurrent callers and caches its result. The second return
// value reports whether the decision came from the backing store.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (*models.FusedDecision, bool, error) {
	if b, ok, err := c.store.GetBytes(key); err == nil && ok {
		var dec models.FusedDecision
		if err := json.Unmarshal(b, &dec); err == nil {
			c.recordLookup(true)
			return &dec, true, nil
		}
		// corrupt entry: drop and recompute
		_ = c.store.DeleteBytes(key)
	}
	c.recordLookup(false)

	c.mu.Lock()
	if cl, ok := c.flight[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.dec, false, cl.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.flight[key] = cl
	c.mu.Unlock()

	atomic.AddUint64(&c.computations, 1)
	dec, err := fn(ctx)

	// Release the key before publishing so a cancelled or failed leader
	// never starves later callers.
	c.mu.Lock()
	delete(c.flight, key)
	c.mu.Unlock()

	if err != nil {
		cl.err = fmt.Errorf("compute %s: %w", key, err)
		close(cl.done)
		return nil, false, cl.err
	}

	if b, merr := json.Marshal(dec); merr == nil {
		if serr := c.store.SetBytes(key, b, c.ttl); serr != nil {
			if c.metrics != nil {
				c.metrics.RecordError("decision_cache_set")
			}
		} else {
			c.indexKey(key)
		}
	}
	cl.dec = dec
	close(cl.done)
	return dec, false, nil
}

// Invalidate drops the stored decision for key. Called by the telemetry
// consumer when fresher signal arrives, so the cache never serves a
// decision computed before the freshest known telemetry.
func (c *Cache) Invalidate(key string) error {
	if err := c.store.DeleteBytes(key); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("decision_cache_invalidate")
		}
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidateRegion drops every stored decision whose key names the region.
// Returns how many keys were dropped.
func (c *Cache) InvalidateRegion(region string) int {
	c.mu.Lock()
	keys := c.byRegion[region]
	delete(c.byRegion, region)
	c.mu.Unlock()

	n := 0
	for key := range keys {
		if err := c.store.DeleteBytes(key); err == nil {
			n++
		} else if c.metrics != nil {
			c.metrics.RecordError("decision_cache_invalidate")
		}
	}
	return n
}

func (c *Cache) indexKey(key string) {
	// Key layout is sku|region|bucket.
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return
	}
	c.mu.Lock()
	set, ok := c.byRegion[parts[1]]
	if !ok {
		set = make(map[string]struct{})
		c.byRegion[parts[1]] = set
	}
	set[key] = struct{}{}
	c.mu.Unlock()
}

// Computations reports how many fusion computations ran (cache misses that
// became leaders).
func (c *Cache) Computations() uint64 {
	return atomic.LoadUint64(&c.computations)
}

func (c *Cache) recordLookup(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}
