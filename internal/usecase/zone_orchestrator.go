package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	domsvc "KeyZones/internal/domain/service"
	applogger "KeyZones/pkg/logger"
	"KeyZones/pkg/metrics"
	"KeyZones/pkg/util"
)

// BatchRequest is one user request for the full asset × timeframe matrix.
// Dates are raw user text; malformed values degrade to unbounded.
type BatchRequest struct {
	RequestID uint64
	TraceID   string
	StartDate string
	EndDate   string
}

// BatchRunner computes a full result matrix.
type BatchRunner interface {
	ComputeAll(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error)
}

// OrchestratorOption configures ZoneOrchestrator.
type OrchestratorOption func(*ZoneOrchestrator)

// WithWorkers bounds the number of concurrent detector invocations.
func WithWorkers(n int) OrchestratorOption {
	return func(o *ZoneOrchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCallTimeout bounds each detector call. Zero leaves it to the detector.
func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *ZoneOrchestrator) { o.callTimeout = d }
}

// WithDateLayout sets the layout used to parse request date text.
func WithDateLayout(layout string) OrchestratorOption {
	return func(o *ZoneOrchestrator) { o.layout = layout }
}

// WithPercents overrides the zone size and merge distance passed to every call.
func WithPercents(zoneSize, mergeDistance float64) OrchestratorOption {
	return func(o *ZoneOrchestrator) {
		o.zoneSize = zoneSize
		o.mergeDistance = mergeDistance
	}
}

// WithOrchestratorLogger sets the logger for batch and pair events.
func WithOrchestratorLogger(l *applogger.Logger) OrchestratorOption {
	return func(o *ZoneOrchestrator) { o.l = l }
}

// WithOrchestratorMetrics sets the recorder for batch outcomes.
func WithOrchestratorMetrics(m domrepo.Metrics) OrchestratorOption {
	return func(o *ZoneOrchestrator) { o.m = m }
}

var _ BatchRunner = (*ZoneOrchestrator)(nil)

// ZoneOrchestrator fans a request out over every asset and timeframe, runs
// the detector for each pair on a bounded pool and assembles the matrix.
// A failing pair never aborts the batch; only an unusable artifact store does.
type ZoneOrchestrator struct {
	store         domrepo.ArtifactStore
	detector      domsvc.ZoneDetector
	workers       int
	callTimeout   time.Duration
	layout        string
	zoneSize      float64
	mergeDistance float64
	l             *applogger.Logger
	m             domrepo.Metrics
}

func NewZoneOrchestrator(store domrepo.ArtifactStore, detector domsvc.ZoneDetector, opts ...OrchestratorOption) *ZoneOrchestrator {
	o := &ZoneOrchestrator{
		store:         store,
		detector:      detector,
		workers:       4,
		layout:        util.DefaultDateLayout,
		zoneSize:      models.DefaultZoneSizePercent,
		mergeDistance: models.DefaultMergeDistancePercent,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.l == nil {
		o.l = applogger.Nop()
	}
	if o.m == nil {
		o.m = metrics.Nop{}
	}
	return o
}

// ComputeAll runs one batch. The returned error is non-nil only when the
// artifact store cannot be prepared (no detector runs) or ctx ends first;
// per-pair failures are reported inside the matrix.
func (o *ZoneOrchestrator) ComputeAll(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error) {
	l := o.l.With(applogger.Uint64("request_id", req.RequestID), applogger.String("trace_id", req.TraceID))

	if err := o.store.Ensure(ctx); err != nil {
		o.m.RecordError("artifact_store")
		l.Error("batch aborted: artifact store unavailable", applogger.Error(err))
		return nil, err
	}

	w, warnings := models.ParseDateWindow(req.StartDate, req.EndDate, o.layout)
	for _, msg := range warnings {
		l.Warn(msg)
	}

	m := models.NewResultMatrix(req.RequestID, w)
	m.TraceID = req.TraceID
	m.Warnings = warnings
	m.StartedAt = time.Now().UTC()

	queries := o.queries(w)

	if err := w.Validate(); err != nil {
		l.Warn("invalid date window, failing every pair", applogger.Error(err))
		for _, q := range queries {
			m.Put(models.FailedResult(q, err))
		}
		m.FinishedAt = time.Now().UTC()
		o.m.RecordBatch(m.FailedCount(), m.FinishedAt.Sub(m.StartedAt).Seconds())
		return m, nil
	}

	results := make([]models.ZoneResult, len(queries))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			results[i] = o.detectOne(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		m.Put(r)
	}
	m.FinishedAt = time.Now().UTC()

	elapsed := m.FinishedAt.Sub(m.StartedAt)
	o.m.RecordBatch(m.FailedCount(), elapsed.Seconds())
	l.Info("batch computed",
		applogger.String("window", w.String()),
		applogger.Int("pairs", m.Len()),
		applogger.Int("failed", m.FailedCount()),
		applogger.Duration("duration_ms", elapsed),
	)

	if err := ctx.Err(); err != nil {
		return m, fmt.Errorf("batch %d interrupted: %w", req.RequestID, err)
	}
	return m, nil
}

// ComputeOne runs the detector for a single pair, outside any batch.
func (o *ZoneOrchestrator) ComputeOne(ctx context.Context, a models.Asset, tf models.Timeframe, w models.DateWindow) (models.ZoneResult, error) {
	if err := o.store.Ensure(ctx); err != nil {
		return models.ZoneResult{}, err
	}
	q := o.query(a, tf, w)
	if err := w.Validate(); err != nil {
		return models.FailedResult(q, err), nil
	}
	return o.detectOne(ctx, q), nil
}

func (o *ZoneOrchestrator) queries(w models.DateWindow) []models.ZoneQuery {
	assets, tfs := models.Assets(), models.Timeframes()
	out := make([]models.ZoneQuery, 0, len(assets)*len(tfs))
	for _, a := range assets {
		for _, tf := range tfs {
			out = append(out, o.query(a, tf, w))
		}
	}
	return out
}

func (o *ZoneOrchestrator) query(a models.Asset, tf models.Timeframe, w models.DateWindow) models.ZoneQuery {
	q := models.NewZoneQuery(a, tf, w)
	q.ZoneSizePercent = o.zoneSize
	q.MergeDistancePercent = o.mergeDistance
	return q
}

// detectOne never returns a zero result: every failure, including a panic in
// the detector, becomes a failed entry for the pair.
func (o *ZoneOrchestrator) detectOne(ctx context.Context, q models.ZoneQuery) (res models.ZoneResult) {
	if err := ctx.Err(); err != nil {
		return models.FailedResult(q, models.NewDetectionError(q, nil, err))
	}

	defer func() {
		if r := recover(); r != nil {
			o.m.RecordError("detector_panic")
			o.l.Error("detector panic",
				applogger.String("asset", q.Asset.Name()),
				applogger.String("timeframe", q.Timeframe.Label()),
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())),
			)
			res = models.FailedResult(q, models.NewDetectionError(q, nil, fmt.Errorf("panic: %v", r)))
		}
	}()

	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	r, err := o.detector.Detect(ctx, q)
	if err != nil {
		failed := models.FailedResult(q, err)
		failed.Duration = r.Duration
		return failed
	}
	r.Asset, r.Timeframe = q.Asset, q.Timeframe
	r.Failed, r.Err = false, nil
	return r
}
