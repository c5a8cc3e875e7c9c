package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	apimetrics "KeyZones/internal/service/metrics"
	"KeyZones/internal/service/ratelimit"
	"KeyZones/internal/usecase"
	xhttp "KeyZones/pkg/http"
	xlogger "KeyZones/pkg/logger"
)

// Zones is what the handler needs from the refresh coordinator.
type Zones interface {
	Trigger(ctx context.Context, startDate, endDate string) (uint64, error)
	Refresh(ctx context.Context, startDate, endDate string) (*models.ResultMatrix, error)
	Latest() *models.ResultMatrix
	LatestIssued() uint64
	ClearArtifacts(ctx context.Context) error
}

// SnapshotReader serves a matrix published by another instance.
type SnapshotReader interface {
	Latest(ctx context.Context) (*models.MatrixView, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Option configures ZonesEchoHandler.
type Option func(*ZonesEchoHandler)

// WithRateLimit limits refresh requests per client address.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *ZonesEchoHandler) {
		h.rate, h.burst = perSecond, float64(burst)
	}
}

func WithSnapshots(s SnapshotReader) Option {
	return func(h *ZonesEchoHandler) { h.snapshots = s }
}

// WithHealthCheck adds a named dependency to /api/health.
func WithHealthCheck(name string, fn HealthCheck) Option {
	return func(h *ZonesEchoHandler) { h.checks[name] = fn }
}

type RefreshAccepted struct {
	RequestID uint64 `json:"request_id"`
}

type HealthView struct {
	Status          string            `json:"status"`
	LatestRequestID uint64            `json:"latest_request_id"`
	LatestIssuedID  uint64            `json:"latest_issued_id"`
	Checks          map[string]string `json:"checks,omitempty"`
}

// ZonesEchoHandler serves the key-zone matrix over HTTP.
type ZonesEchoHandler struct {
	logger    *xlogger.Logger
	zones     Zones
	store     domrepo.ArtifactStore
	snapshots SnapshotReader
	limiter   *ratelimit.Limiter
	rate      float64
	burst     float64
	checks    map[string]HealthCheck
}

func NewZonesEchoHandler(logger *xlogger.Logger, zones Zones, store domrepo.ArtifactStore, opts ...Option) *ZonesEchoHandler {
	h := &ZonesEchoHandler{
		logger:  logger,
		zones:   zones,
		store:   store,
		limiter: ratelimit.New(),
		rate:    2,
		burst:   5,
		checks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = xlogger.Nop()
	}
	apimetrics.Register()
	return h
}

func (h *ZonesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/zones/refresh", h.Refresh)
	g.GET("/zones", h.Matrix)
	g.GET("/zones/:asset/:timeframe", h.Pair)
	g.GET("/zones/:asset/:timeframe/chart", h.Chart)
	g.DELETE("/artifacts", h.ClearArtifacts)
	g.GET("/catalog", h.Catalog)
	g.GET("/health", h.Health)
}

func (h *ZonesEchoHandler) Refresh(c echo.Context) error {
	if !h.limiter.Allow(c.RealIP()+":refresh", h.burst, h.rate) {
		apimetrics.RateLimited.WithLabelValues("refresh").Inc()
		h.logger.Warn("zones.refresh rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many refresh requests"))
	}

	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !req.Wait {
		id, err := h.zones.Trigger(c.Request().Context(), req.StartDate, req.EndDate)
		if err != nil {
			h.logger.Error("zones.refresh trigger error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("refresh not accepted").WithError(err))
		}
		return xhttp.AcceptedResponse(c, RefreshAccepted{RequestID: id})
	}

	m, err := h.zones.Refresh(c.Request().Context(), req.StartDate, req.EndDate)
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, m.View())
	case errors.Is(err, usecase.ErrSuperseded):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("superseded by a newer refresh").
			WithParam("request_id", m.RequestID).
			WithParam("latest_issued_id", h.zones.LatestIssued()))
	case errors.Is(err, models.ErrArtifactStore):
		h.logger.Error("zones.refresh artifact store error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("artifact store unavailable").WithError(err))
	default:
		h.logger.Error("zones.refresh error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("refresh did not complete").WithError(err))
	}
}

// Matrix serves the newest matrix known here: the local one or the shared
// snapshot published by another instance, whichever has the higher id.
func (h *ZonesEchoHandler) Matrix(c echo.Context) error {
	var v *models.MatrixView
	if m := h.zones.Latest(); m != nil {
		local := m.View()
		v = &local
	}
	if h.snapshots != nil {
		shared, err := h.snapshots.Latest(c.Request().Context())
		if err != nil {
			h.logger.Warn("zones.matrix snapshot error", xlogger.Error(err))
		} else if shared != nil && (v == nil || shared.RequestID > v.RequestID) {
			v = shared
		}
	}
	if v == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no zones computed yet"))
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *ZonesEchoHandler) Pair(c echo.Context) error {
	r, written, err := h.result(c)
	if written {
		return err
	}
	return xhttp.SuccessResponse(c, r.View())
}

// Chart streams the PNG for a pair. Failed pairs have no chart.
func (h *ZonesEchoHandler) Chart(c echo.Context) error {
	r, written, err := h.result(c)
	if written {
		return err
	}
	if r.Failed {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("detection failed for this pair").
			WithParam("asset", r.Asset.Name()).
			WithParam("timeframe", r.Timeframe.Label()))
	}

	rc, err := h.store.Open(r.Asset, r.Timeframe)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("chart not found"))
		}
		h.logger.Error("zones.chart open error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("chart unavailable").WithError(err))
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return c.Stream(http.StatusOK, "image/png", &countingReader{r: rc})
}

// ClearArtifacts empties the chart directory; 409 while a batch is running.
func (h *ZonesEchoHandler) ClearArtifacts(c echo.Context) error {
	if err := h.zones.ClearArtifacts(c.Request().Context()); err != nil {
		if errors.Is(err, usecase.ErrBatchRunning) {
			return xhttp.AppErrorResponse(c, xhttp.ConflictError("a batch is running, retry when it finishes").
				WithParam("latest_issued_id", h.zones.LatestIssued()))
		}
		h.logger.Error("artifacts.clear error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("clear failed").WithError(err))
	}
	h.logger.Info("artifacts cleared", xlogger.String("root", h.store.Root()))
	return xhttp.SuccessResponse(c, map[string]string{"cleared": h.store.Root()})
}

func (h *ZonesEchoHandler) Catalog(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.SuccessResponse(c, models.Catalog())
}

func (h *ZonesEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	v := HealthView{Status: "ok", LatestIssuedID: h.zones.LatestIssued()}
	if m := h.zones.Latest(); m != nil {
		v.LatestRequestID = m.RequestID
	}
	status := http.StatusOK
	if len(h.checks) > 0 {
		v.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				v.Checks[name] = err.Error()
				v.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			v.Checks[name] = "ok"
		}
	}
	return xhttp.DataResponse(c, status, v)
}

// result resolves the pair from the path against the latest matrix. When
// written is true an error response was already sent.
func (h *ZonesEchoHandler) result(c echo.Context) (r models.ZoneResult, written bool, err error) {
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return r, true, xhttp.BadRequestResponse(c, verr)
	}
	m := h.zones.Latest()
	if m == nil {
		return r, true, xhttp.AppErrorResponse(c, xhttp.NotFoundError("no zones computed yet"))
	}
	r, ok := m.Get(models.Asset(req.Asset), models.Timeframe(req.Timeframe))
	if !ok {
		return r, true, xhttp.AppErrorResponse(c, xhttp.NotFoundError("pair not in latest batch"))
	}
	return r, false, nil
}

type countingReader struct {
	r io.Reader
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	apimetrics.ChartBytes.Add(float64(n))
	return n, err
}
