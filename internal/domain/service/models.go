package service

import (
	"context"

	"MycoCast/internal/domain/models"
)

// ModelAdapter is the uniform capability over the four trained model kinds.
// Implementations validate required features, normalize output units, and
// must not mutate the input vector.
type ModelAdapter interface {
	Kind() models.ModelKind
	Infer(ctx context.Context, fv *models.FeatureVector) (models.ModelOutput, error)
}

// InferenceObserver receives one latency/usage observation per adapter call.
// The context carries the request's recording session, if any. Observers are
// best-effort; they must not fail inference.
type InferenceObserver interface {
	ObserveInference(ctx context.Context, obs models.AdapterLatency)
}
