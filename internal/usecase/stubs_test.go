package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"KeyZones/internal/domain/models"
)

type stubStore struct {
	root       string
	ensureErr  error
	ensures    atomic.Int32
	clears     atomic.Int32
	ensureDone atomic.Bool
}

func (s *stubStore) Ensure(context.Context) error {
	s.ensures.Add(1)
	if s.ensureErr != nil {
		return s.ensureErr
	}
	s.ensureDone.Store(true)
	return nil
}

func (s *stubStore) Clear(context.Context) error {
	s.clears.Add(1)
	return nil
}

func (s *stubStore) PathFor(a models.Asset, tf models.Timeframe) string {
	return fmt.Sprintf("%s/levels_%s_%s.png", s.root, a, tf)
}

func (s *stubStore) Open(models.Asset, models.Timeframe) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStore) Root() string { return s.root }

// stubDetector answers from fn, counting calls and tracking peak concurrency.
type stubDetector struct {
	fn       func(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error)
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	queries  []models.ZoneQuery
}

func (d *stubDetector) Detect(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
	d.calls.Add(1)
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	d.mu.Lock()
	d.queries = append(d.queries, q)
	d.mu.Unlock()
	return d.fn(ctx, q)
}

func levelsFor(store *stubStore, levels ...string) func(context.Context, models.ZoneQuery) (models.ZoneResult, error) {
	return func(_ context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
		return models.ZoneResult{
			Asset:        q.Asset,
			Timeframe:    q.Timeframe,
			Levels:       levels,
			ArtifactPath: store.PathFor(q.Asset, q.Timeframe),
		}, nil
	}
}

type stubSequencer struct{ n atomic.Uint64 }

func (s *stubSequencer) Next(context.Context) (uint64, error) { return s.n.Add(1), nil }

type recordingPublisher struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, m *models.ResultMatrix) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, m.RequestID)
	return p.err
}

func (p *recordingPublisher) published() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.ids...)
}
