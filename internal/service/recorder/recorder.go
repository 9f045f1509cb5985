package recorder

import (
	"context"
	"sync"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	domsvc "MycoCast/internal/domain/service"
)

type ctxKey struct{}

// Session accumulates one request's provenance trail and adapter latencies.
// All methods are safe for concurrent use and never fail: explainability is
// best-effort, the decision is not.
type Session struct {
	mu    sync.Mutex
	trail []models.TraceEvent
	lats  []models.AdapterLatency
}

// Trace appends one ordered event to the trail.
func (s *Session) Trace(stage, detail string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.trail = append(s.trail, models.TraceEvent{Stage: stage, Detail: detail, At: time.Now()})
	s.mu.Unlock()
}

func (s *Session) addLatency(obs models.AdapterLatency) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lats = append(s.lats, obs)
	s.mu.Unlock()
}

// Explanation snapshots the session into an immutable explanation object.
func (s *Session) Explanation() (exp models.Explanation) {
	if s == nil {
		return models.Explanation{}
	}
	defer func() {
		if r := recover(); r != nil {
			exp = models.Explanation{}
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()
	exp.Trail = make([]models.TraceEvent, len(s.trail))
	copy(exp.Trail, s.trail)
	exp.Latencies = make([]models.AdapterLatency, len(s.lats))
	copy(exp.Latencies, s.lats)
	return exp
}

// Recorder is the process-wide explainability sink. Adapters emit into it
// through the InferenceObserver interface; it routes observations to the
// request's session (carried in the context) and to Prometheus.
type Recorder struct {
	metrics domrepo.Metrics
}

func New(metrics domrepo.Metrics) *Recorder {
	return &Recorder{metrics: metrics}
}

// Begin attaches a fresh session to ctx and returns both.
func (r *Recorder) Begin(ctx context.Context) (context.Context, *Session) {
	s := &Session{}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// FromContext returns the session carried by ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// ObserveInference implements service.InferenceObserver.
func (r *Recorder) ObserveInference(ctx context.Context, obs models.AdapterLatency) {
	defer func() {
		_ = recover() // recording must never fail the request
	}()
	FromContext(ctx).addLatency(obs)
	if r.metrics != nil {
		r.metrics.RecordLatency("infer_"+string(obs.Kind), obs.Duration.Seconds())
		if obs.Failed {
			r.metrics.RecordError("infer_" + string(obs.Kind))
		}
	}
}

var _ domsvc.InferenceObserver = (*Recorder)(nil)
