package api

import (
	"errors"
	"strconv"
	"time"

	models "MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
	"MycoCast/internal/service/metrics"
	"MycoCast/internal/service/ratelimit"
	"MycoCast/internal/usecase"
	xhttp "MycoCast/pkg/http"
	xlogger "MycoCast/pkg/logger"
	"MycoCast/pkg/util"

	"github.com/labstack/echo/v4"
)

// DecideEchoHandler exposes the decision-serving surface over Echo.
type DecideEchoHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.FusionEngine
	teleQ   *usecase.TelemetryQueryUseCase
	rl      *ratelimit.Limiter
	storage domrepo.Storage
}

func NewDecideEchoHandler(logger *xlogger.Logger, engine *usecase.FusionEngine, teleQ *usecase.TelemetryQueryUseCase) *DecideEchoHandler {
	metrics.Register()
	return &DecideEchoHandler{logger: logger, engine: engine, teleQ: teleQ, rl: ratelimit.New()}
}

// SetStorage wires the storage backing the health probe.
func (h *DecideEchoHandler) SetStorage(s domrepo.Storage) { h.storage = s }

func (h *DecideEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/decide", h.Decide)
	g.POST("/invalidate", h.Invalidate)
	g.GET("/telemetry", h.Telemetry)
	g.GET("/health", h.Health)
}

func (h *DecideEchoHandler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	if h.storage != nil {
		if err := h.storage.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["storage"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, status)
}

// decideResponse pairs the decision with its explanation trail.
type decideResponse struct {
	Decision    *models.FusedDecision `json:"decision"`
	Explanation models.Explanation    `json:"explanation"`
}

func (h *DecideEchoHandler) Decide(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.FusionLatency.WithLabelValues("decide").Observe(time.Since(start).Seconds()) }()

	req := &models.DecideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":decide", 20, 10) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	bucket, err := parseBucket(req.Bucket)
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("bucket: %v", err))
	}
	gran := domrepo.NormalizeGranularity(req.Granularity)

	freq := &models.ForecastRequest{
		SKU:           req.SKU,
		Region:        req.Region,
		Channel:       models.Channel(req.Channel),
		Bucket:        domrepo.BucketStart(bucket, gran),
		Granularity:   string(gran),
		PriceOverride: req.PriceOverride,
		Telemetry:     req.Telemetry,
		RequestedAt:   time.Now(),
	}

	dec, exp, err := h.engine.Decide(c.Request().Context(), freq)
	if err != nil {
		metrics.FusionErrors.WithLabelValues("decide").Inc()
		h.logger.Error("decide usecase error", xlogger.Error(err))
		if errors.Is(err, models.ErrFeatureUnavailable) || errors.Is(err, models.ErrNoBaseEstimate) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, decideResponse{Decision: dec, Explanation: exp})
}

func (h *DecideEchoHandler) Invalidate(c echo.Context) error {
	req := &models.InvalidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	bucket, err := parseBucket(req.Bucket)
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("bucket: %v", err))
	}
	bucket = domrepo.BucketStart(bucket, domrepo.NormalizeGranularity(req.Granularity))
	key := (&models.ForecastRequest{SKU: req.SKU, Region: req.Region, Bucket: bucket}).Key()
	if err := h.engine.InvalidateKey(key); err != nil {
		h.logger.Error("invalidate error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"invalidated": key})
}

func (h *DecideEchoHandler) Telemetry(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.FusionLatency.WithLabelValues("telemetry").Observe(time.Since(start).Seconds()) }()

	region := c.QueryParam("region")
	if region == "" {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestError("region required"))
	}
	if !h.rl.Allow(c.RealIP()+":telemetry", 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := c.QueryParam("from"); v != "" {
		t, err := parseBucket(v)
		if err != nil {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("from: %v", err))
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseBucket(v)
		if err != nil {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("to: %v", err))
		}
		to = t
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	res, err := h.teleQ.GetTelemetry(c.Request().Context(), usecase.GetTelemetryParams{
		Region: region, From: from, To: to, Limit: limit,
	})
	if err != nil {
		metrics.FusionErrors.WithLabelValues("telemetry").Inc()
		h.logger.Error("telemetry usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// parseBucket accepts RFC3339 or unix seconds.
func parseBucket(s string) (time.Time, error) {
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, errors.New("expected RFC3339 or unix seconds")
	}
	return t, nil
}
