package modeladapter

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/pkg/config"
	xhttp "MycoCast/pkg/http"
)

// HTTPServiceBase provides a DRY foundation for model-service HTTP clients.
// It centralizes client construction, JSON POST handling, and the per-call
// latency observation every adapter must emit.
type HTTPServiceBase struct {
	baseURL  string
	client   *xhttp.Client
	observer domsvc.InferenceObserver
}

// NewHTTPServiceBase builds an HTTP client with timeout and base URL from config.
func NewHTTPServiceBase(cfg *config.Config, observer domsvc.InferenceObserver) *HTTPServiceBase {
	timeout := cfg.Models.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL:  cfg.Models.ServiceURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		observer: observer,
	}
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry posts JSON with up to `attempts` retries for transient errors.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		// simple backoff
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// observe emits a latency observation; best-effort by contract.
func (b *HTTPServiceBase) observe(ctx context.Context, kind models.ModelKind, start time.Time, failed bool) {
	if b.observer == nil {
		return
	}
	b.observer.ObserveInference(ctx, models.AdapterLatency{
		Kind:     kind,
		Duration: time.Since(start),
		Failed:   failed,
	})
}

// requireFeatures verifies fv carries every named feature and returns the
// subset payload sent to the model service. The vector is never mutated.
func requireFeatures(kind models.ModelKind, fv *models.FeatureVector, names []string) (map[string]float64, error) {
	subset := make(map[string]float64, len(names))
	var missing []string
	for _, n := range names {
		v, ok := fv.Get(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		subset[n] = v
	}
	if len(missing) > 0 {
		return nil, &models.MissingFeaturesError{Kind: kind, Missing: missing}
	}
	return subset, nil
}
