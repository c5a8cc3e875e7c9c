package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	applogger "KeyZones/pkg/logger"
	"KeyZones/pkg/metrics"
)

// ErrSuperseded is returned for a batch that finished after a newer request
// was issued. Its results are discarded.
var ErrSuperseded = errors.New("batch superseded by a newer request")

// ErrBatchRunning is returned by ClearArtifacts while a batch may still be
// writing charts.
var ErrBatchRunning = errors.New("a batch is running")

// CoordinatorOption configures RefreshCoordinator.
type CoordinatorOption func(*RefreshCoordinator)

// WithPublishers registers sinks notified of every accepted matrix.
func WithPublishers(p ...domrepo.ResultPublisher) CoordinatorOption {
	return func(c *RefreshCoordinator) { c.publishers = append(c.publishers, p...) }
}

// WithClearOnClose clears the artifact store when the coordinator closes.
func WithClearOnClose(clear bool) CoordinatorOption {
	return func(c *RefreshCoordinator) { c.clearOnClose = clear }
}

func WithCoordinatorLogger(l *applogger.Logger) CoordinatorOption {
	return func(c *RefreshCoordinator) { c.l = l }
}

func WithCoordinatorMetrics(m domrepo.Metrics) CoordinatorOption {
	return func(c *RefreshCoordinator) { c.m = m }
}

// RefreshCoordinator issues request ids, starts batches and keeps the latest
// accepted matrix. A new request cancels the one in flight; a batch is only
// published if its id is still the newest issued and newer than anything
// already published.
type RefreshCoordinator struct {
	runner       BatchRunner
	seq          domrepo.Sequencer
	store        domrepo.ArtifactStore
	publishers   []domrepo.ResultPublisher
	clearOnClose bool
	l            *applogger.Logger
	m            domrepo.Metrics

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	issuedID    uint64
	publishedID uint64
	latest      *models.ResultMatrix
	cancelPrev  context.CancelFunc
	running     int
	closed      bool

	pubMu sync.Mutex
}

func NewRefreshCoordinator(runner BatchRunner, seq domrepo.Sequencer, store domrepo.ArtifactStore, opts ...CoordinatorOption) *RefreshCoordinator {
	c := &RefreshCoordinator{runner: runner, seq: seq, store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.l == nil {
		c.l = applogger.Nop()
	}
	if c.m == nil {
		c.m = metrics.Nop{}
	}
	c.baseCtx, c.stop = context.WithCancel(context.Background())
	return c
}

// Trigger starts a batch in the background and returns its request id.
func (c *RefreshCoordinator) Trigger(ctx context.Context, startDate, endDate string) (uint64, error) {
	req, bctx, cancel, err := c.begin(ctx, c.baseCtx, startDate, endDate)
	if err != nil {
		return 0, err
	}

	go func() {
		defer c.finish()
		defer cancel()
		_, _ = c.run(bctx, req)
	}()
	return req.RequestID, nil
}

// Refresh runs a batch on the caller's goroutine and returns its matrix.
// ErrSuperseded is returned, together with the computed matrix, when a newer
// request was issued meanwhile.
func (c *RefreshCoordinator) Refresh(ctx context.Context, startDate, endDate string) (*models.ResultMatrix, error) {
	req, bctx, cancel, err := c.begin(ctx, ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer c.finish()
	return c.run(bctx, req)
}

// Latest returns the newest published matrix, or nil.
func (c *RefreshCoordinator) Latest() *models.ResultMatrix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// LatestIssued returns the newest request id handed out by this coordinator.
func (c *RefreshCoordinator) LatestIssued() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issuedID
}

// ClearArtifacts empties the artifact store unless a batch is running. A
// batch triggered meanwhile waits for the clear and recreates the store.
func (c *RefreshCoordinator) ClearArtifacts(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running > 0 {
		return ErrBatchRunning
	}
	return c.store.Clear(ctx)
}

// Wait blocks until every running batch has finished.
func (c *RefreshCoordinator) Wait() {
	c.wg.Wait()
}

// Close cancels running batches, waits for them and clears the artifact
// store when configured to.
func (c *RefreshCoordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for batches: %w", ctx.Err())
	}

	if c.clearOnClose {
		if err := c.store.Clear(ctx); err != nil {
			c.l.Error("artifact store clear on close failed", applogger.Error(err))
			return err
		}
		c.l.Info("artifact store cleared", applogger.String("root", c.store.Root()))
	}
	return nil
}

func (c *RefreshCoordinator) finish() {
	c.mu.Lock()
	c.running--
	c.mu.Unlock()
	c.wg.Done()
}

// begin issues an id, cancels the batch in flight and derives the new
// batch's context from parent. On success the caller must call finish.
func (c *RefreshCoordinator) begin(ctx, parent context.Context, startDate, endDate string) (BatchRequest, context.Context, context.CancelFunc, error) {
	id, err := c.seq.Next(ctx)
	if err != nil {
		c.m.RecordError("sequencer")
		return BatchRequest{}, nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return BatchRequest{}, nil, nil, errors.New("coordinator closed")
	}
	c.wg.Add(1)
	c.running++

	if id > c.issuedID {
		c.issuedID = id
		if c.cancelPrev != nil {
			c.cancelPrev()
		}
	}
	bctx, cancel := context.WithCancel(parent)
	if id == c.issuedID {
		c.cancelPrev = cancel
	} else {
		// An id from a shared sequencer can arrive out of order; it is
		// already stale.
		cancel()
	}

	req := BatchRequest{
		RequestID: id,
		TraceID:   uuid.NewString(),
		StartDate: startDate,
		EndDate:   endDate,
	}
	c.l.Info("batch requested",
		applogger.Uint64("request_id", id),
		applogger.String("trace_id", req.TraceID),
		applogger.String("start_date", startDate),
		applogger.String("end_date", endDate),
	)
	return req, bctx, cancel, nil
}

func (c *RefreshCoordinator) run(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error) {
	m, err := c.runner.ComputeAll(ctx, req)
	if err != nil {
		if m == nil || !c.superseded(req.RequestID) {
			return m, err
		}
		c.m.RecordStaleDiscard()
		c.l.Info("stale batch discarded", applogger.Uint64("request_id", req.RequestID))
		return m, ErrSuperseded
	}
	if !c.accept(req.RequestID, m) {
		c.m.RecordStaleDiscard()
		c.l.Info("stale batch discarded", applogger.Uint64("request_id", req.RequestID))
		return m, ErrSuperseded
	}
	return m, nil
}

func (c *RefreshCoordinator) superseded(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id != c.issuedID
}

// accept records m as latest if it is still the newest and notifies
// publishers. Publications are serialized so sinks see increasing ids.
func (c *RefreshCoordinator) accept(id uint64, m *models.ResultMatrix) bool {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if id != c.issuedID || id <= c.publishedID {
		c.mu.Unlock()
		return false
	}
	c.publishedID = id
	c.latest = m
	c.mu.Unlock()

	for _, p := range c.publishers {
		pctx, cancel := context.WithTimeout(c.baseCtx, 10*time.Second)
		if err := p.Publish(pctx, m); err != nil {
			c.m.RecordError("publish")
			c.l.Error("publish failed", applogger.Uint64("request_id", id), applogger.Error(err))
		}
		cancel()
	}
	return true
}
