package usecase

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/internal/service/audit"
	"MycoCast/internal/service/decision"
	"MycoCast/internal/service/recorder"
	"MycoCast/internal/services/features"
	applogger "MycoCast/pkg/logger"
)

// degradedStageConfidence is applied when a correction stage cannot run for
// a non-staleness reason (adapter error, missing features).
const degradedStageConfidence = 0.9

// fallbackConfidencePenalty is applied when the preferred base channel
// fails and the other channel serves the estimate.
const fallbackConfidencePenalty = 0.5

// FusionConfig carries the serving-time tuning constants.
type FusionConfig struct {
	// FreshnessWindow is the maximum telemetry age for which the intraday
	// correction is considered reliable.
	FreshnessWindow time.Duration
	// Raw stage weights, normalized over the stages that actually applied.
	BaseWeight       float64
	ElasticityWeight float64
	IntradayWeight   float64
}

func (c *FusionConfig) defaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 15 * time.Minute
	}
	if c.BaseWeight <= 0 {
		c.BaseWeight = 1.0
	}
	if c.ElasticityWeight <= 0 {
		c.ElasticityWeight = 0.25
	}
	if c.IntradayWeight <= 0 {
		c.IntradayWeight = 0.2
	}
}

// FusionEngine combines a base demand estimate with at most two correction
// multipliers into one FusedDecision with confidence and provenance.
type FusionEngine struct {
	resolver *features.Resolver
	adapters map[models.ModelKind]domsvc.ModelAdapter
	cache    *decision.Cache
	rec      *recorder.Recorder
	metrics  domrepo.Metrics
	cfg      FusionConfig
	l        *applogger.Logger
	audit    *audit.Trail
}

func NewFusionEngine(
	resolver *features.Resolver,
	adapters []domsvc.ModelAdapter,
	cache *decision.Cache,
	rec *recorder.Recorder,
	metrics domrepo.Metrics,
	cfg FusionConfig,
) *FusionEngine {
	cfg.defaults()
	byKind := make(map[models.ModelKind]domsvc.ModelAdapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	return &FusionEngine{
		resolver: resolver,
		adapters: byKind,
		cache:    cache,
		rec:      rec,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// SetLogger injects a structured logger.
func (e *FusionEngine) SetLogger(l *applogger.Logger) { e.l = l }

// SetAuditTrail injects the decision audit queue. Optional.
func (e *FusionEngine) SetAuditTrail(t *audit.Trail) { e.audit = t }

// Decide is the serving boundary: one fused decision plus its explanation.
// Concurrent callers for the same key share a single fusion computation.
func (e *FusionEngine) Decide(ctx context.Context, req *models.ForecastRequest) (*models.FusedDecision, models.Explanation, error) {
	if req.RequestedAt.IsZero() {
		r := *req
		r.RequestedAt = time.Now()
		req = &r
	}

	ctx, session := e.rec.Begin(ctx)
	start := time.Now()

	dec, hit, err := e.cache.GetOrCompute(ctx, req.Key(), func(ctx context.Context) (*models.FusedDecision, error) {
		return e.fuse(ctx, req)
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordError("decide")
		}
		if e.l != nil {
			e.l.Error("decide failed",
				applogger.String("sku", req.SKU),
				applogger.String("region", req.Region),
				applogger.Error(err),
			)
		}
		return nil, session.Explanation(), err
	}

	if e.metrics != nil {
		e.metrics.RecordLatency("decide", time.Since(start).Seconds())
		e.metrics.RecordDecision(string(dec.Channel), dec.SKU, dec.Quantity, dec.Confidence)
	}
	exp := session.Explanation()
	exp.CacheHit = hit
	if hit {
		exp.Trail = append(exp.Trail, models.TraceEvent{Stage: "cache", Detail: "served from decision cache", At: time.Now()})
	} else {
		e.audit.Publish(ctx, audit.Record{
			Key:         req.Key(),
			Decision:    dec,
			Explanation: exp,
			ServedAt:    time.Now(),
		})
	}
	return dec, exp, nil
}

// InvalidateKey drops a cached decision; exposed for the telemetry consumer
// and the operator endpoint.
func (e *FusionEngine) InvalidateKey(key string) error {
	return e.cache.Invalidate(key)
}

// InvalidateRegion drops every cached decision for a region.
func (e *FusionEngine) InvalidateRegion(region string) int {
	return e.cache.InvalidateRegion(region)
}

// CacheComputations exposes the fusion-computation probe.
func (e *FusionEngine) CacheComputations() uint64 { return e.cache.Computations() }

// fuse runs the fixed stage order base -> elasticity -> intraday. Later
// stages depend on earlier outputs; no reordering.
func (e *FusionEngine) fuse(ctx context.Context, req *models.ForecastRequest) (*models.FusedDecision, error) {
	session := recorder.FromContext(ctx)

	resolved, err := e.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	fv := resolved.Vector
	if fv.Partial && session != nil {
		session.Trace("resolve", "partial feature vector: realtime signals missing")
	}

	baseC, quantity, baseConf, err := e.baseStage(ctx, req, fv, session)
	if err != nil {
		return nil, err
	}

	elastC, quantity, elastConf := e.elasticityStage(ctx, req, fv, session, quantity)
	intraC, quantity, intraConf := e.intradayStage(ctx, req, fv, resolved.Telemetry, session, quantity)

	clamped := false
	if quantity < 0 {
		quantity = 0
		clamped = true
		if session != nil {
			session.Trace("fusion", "negative quantity clamped to zero")
		}
	}

	contribs := normalizeWeights(
		[]models.Contribution{baseC, elastC, intraC},
		[]float64{e.cfg.BaseWeight, e.cfg.ElasticityWeight, e.cfg.IntradayWeight},
	)

	dec := &models.FusedDecision{
		SKU:           req.SKU,
		Region:        req.Region,
		Channel:       req.Channel,
		Bucket:        req.Bucket,
		Quantity:      quantity,
		UnitPrice:     recommendedPrice(req, fv),
		Confidence:    clamp01(baseConf * elastConf * intraConf),
		Clamped:       clamped,
		Contributions: contribs,
		ComputedAt:    time.Now(),
	}
	return dec, nil
}

// baseStage selects the channel estimate, falling back to the other channel
// with a confidence penalty when the preferred adapter fails.
func (e *FusionEngine) baseStage(ctx context.Context, req *models.ForecastRequest, fv *models.FeatureVector, session *recorder.Session) (models.Contribution, float64, float64, error) {
	preferred, other := models.ModelB2C, models.ModelB2B
	if req.Channel == models.ChannelB2B {
		preferred, other = models.ModelB2B, models.ModelB2C
	}

	out, perr := e.infer(ctx, preferred, fv)
	if perr == nil {
		conf := pointConfidence(out.Point)
		if session != nil {
			session.Trace("base", fmt.Sprintf("%s estimate %.2f units", preferred, out.Point.Quantity))
		}
		c := models.Contribution{Stage: "base", Kind: preferred, Status: models.StageApplied, Multiplier: 1, Raw: &out}
		return c, out.Point.Quantity, conf, nil
	}

	fbOut, ferr := e.infer(ctx, other, fv)
	if ferr != nil {
		return models.Contribution{}, 0, 0, fmt.Errorf("%w (%s: %v; %s: %v)", models.ErrNoBaseEstimate, preferred, perr, other, ferr)
	}
	conf := pointConfidence(fbOut.Point) * fallbackConfidencePenalty
	reason := fmt.Sprintf("preferred channel %s failed: %v", preferred, perr)
	if session != nil {
		session.Trace("base", "fallback to "+string(other)+": "+reason)
	}
	c := models.Contribution{Stage: "base", Kind: other, Status: models.StageFallback, Multiplier: 1, Reason: reason, Raw: &fbOut}
	return c, fbOut.Point.Quantity, conf, nil
}

// elasticityStage applies the price-elasticity multiplier only when the
// request overrides price. Callers must see it was skipped, not
// zero-weighted, so the not-applied record is always present.
func (e *FusionEngine) elasticityStage(ctx context.Context, req *models.ForecastRequest, fv *models.FeatureVector, session *recorder.Session, quantity float64) (models.Contribution, float64, float64) {
	if req.PriceOverride == nil {
		if session != nil {
			session.Trace("elasticity", "not applied: no price override")
		}
		return models.Contribution{
			Stage: "elasticity", Kind: models.ModelElasticity,
			Status: models.StageNotApplied, Multiplier: 1, Reason: "no price override",
		}, quantity, 1
	}

	out, err := e.infer(ctx, models.ModelElasticity, fv)
	if err != nil {
		if session != nil {
			session.Trace("elasticity", "skipped: "+err.Error())
		}
		return models.Contribution{
			Stage: "elasticity", Kind: models.ModelElasticity,
			Status: models.StageSkipped, Multiplier: 1, Reason: err.Error(),
		}, quantity, degradedStageConfidence
	}

	if session != nil {
		session.Trace("elasticity", fmt.Sprintf("multiplier %.4f", out.Mult.Factor))
	}
	c := models.Contribution{
		Stage: "elasticity", Kind: models.ModelElasticity,
		Status: models.StageApplied, Multiplier: out.Mult.Factor, Raw: &out,
	}
	return c, quantity * out.Mult.Factor, out.Mult.Confidence
}

// intradayStage applies the telemetry correction when the snapshot is
// within the freshness window. Past the window the multiplier is
// discarded, but the model is still consulted for its confidence, which
// is then scaled by a linear staleness decay (1.0 at the window
// boundary, 0.5 at double the window, floored there). Anchoring the
// decay on the model's own confidence keeps the stage confidence
// continuous across the boundary: a stale snapshot never scores above a
// fresh one.
func (e *FusionEngine) intradayStage(ctx context.Context, req *models.ForecastRequest, fv *models.FeatureVector, tele *models.TelemetrySnapshot, session *recorder.Session, quantity float64) (models.Contribution, float64, float64) {
	if tele == nil {
		if session != nil {
			session.Trace("intraday", "skipped: no telemetry")
		}
		return models.Contribution{
			Stage: "intraday", Kind: models.ModelIntraday,
			Status: models.StageSkipped, Multiplier: 1, Reason: "no telemetry",
		}, quantity, 0.5
	}

	age := tele.Age(req.RequestedAt)
	if age > e.cfg.FreshnessWindow {
		decay := stalenessConfidence(age, e.cfg.FreshnessWindow)
		reason := fmt.Sprintf("telemetry stale by %s", (age - e.cfg.FreshnessWindow).Round(time.Second))
		if session != nil {
			session.Trace("intraday", "skipped: "+reason)
		}
		conf := degradedStageConfidence
		if out, err := e.infer(ctx, models.ModelIntraday, fv); err == nil {
			conf = out.Mult.Confidence
		}
		return models.Contribution{
			Stage: "intraday", Kind: models.ModelIntraday,
			Status: models.StageSkipped, Multiplier: 1, Reason: reason,
		}, quantity, conf * decay
	}

	out, err := e.infer(ctx, models.ModelIntraday, fv)
	if err != nil {
		if session != nil {
			session.Trace("intraday", "skipped: "+err.Error())
		}
		return models.Contribution{
			Stage: "intraday", Kind: models.ModelIntraday,
			Status: models.StageSkipped, Multiplier: 1, Reason: err.Error(),
		}, quantity, degradedStageConfidence
	}

	if session != nil {
		session.Trace("intraday", fmt.Sprintf("multiplier %.4f (telemetry age %s)", out.Mult.Factor, age.Round(time.Second)))
	}
	c := models.Contribution{
		Stage: "intraday", Kind: models.ModelIntraday,
		Status: models.StageApplied, Multiplier: out.Mult.Factor, Raw: &out,
	}
	return c, quantity * out.Mult.Factor, out.Mult.Confidence
}

func (e *FusionEngine) infer(ctx context.Context, kind models.ModelKind, fv *models.FeatureVector) (models.ModelOutput, error) {
	a, ok := e.adapters[kind]
	if !ok {
		return models.ModelOutput{}, fmt.Errorf("no adapter for model %s", kind)
	}
	out, err := a.Infer(ctx, fv)
	if err != nil {
		return models.ModelOutput{}, err
	}
	switch kind {
	case models.ModelB2B, models.ModelB2C:
		if out.Point == nil {
			return models.ModelOutput{}, fmt.Errorf("model %s returned no point estimate", kind)
		}
	default:
		if out.Mult == nil {
			return models.ModelOutput{}, fmt.Errorf("model %s returned no multiplier", kind)
		}
	}
	return out, nil
}

// recommendedPrice keeps price and quantity corrections consistent: the
// list price scaled by the same override ratio the elasticity stage used.
func recommendedPrice(req *models.ForecastRequest, fv *models.FeatureVector) float64 {
	optimal, _ := fv.Get("optimal_price_per_kg")
	if req.PriceOverride != nil && *req.PriceOverride > 0 {
		if ratio, ok := fv.Get("price_ratio"); ok && optimal > 0 {
			return optimal * ratio
		}
		return *req.PriceOverride
	}
	return optimal
}

// pointConfidence shrinks base confidence with relative dispersion.
func pointConfidence(p *models.PointEstimate) float64 {
	if p.Quantity <= 0 || p.StdDev <= 0 {
		return 1
	}
	penalty := p.StdDev / (2 * p.Quantity)
	if penalty > 0.5 {
		penalty = 0.5
	}
	return 1 - penalty
}

// stalenessConfidence decays linearly from 1.0 at the window boundary to
// 0.5 at double the window, floored at 0.5.
func stalenessConfidence(age, window time.Duration) float64 {
	if age <= window {
		return 1
	}
	excess := float64(age-window) / float64(window)
	if excess > 1 {
		excess = 1
	}
	return 1 - 0.5*excess
}

// normalizeWeights assigns raw weights to the stages that contributed
// numerically and normalizes so recorded weights sum to exactly 1.0.
func normalizeWeights(contribs []models.Contribution, raw []float64) []models.Contribution {
	total := 0.0
	for i, c := range contribs {
		if c.Status == models.StageApplied || c.Status == models.StageFallback {
			total += raw[i]
		}
	}
	if total <= 0 {
		return contribs
	}
	for i := range contribs {
		c := &contribs[i]
		if c.Status == models.StageApplied || c.Status == models.StageFallback {
			c.Weight = raw[i] / total
		}
	}
	return contribs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
