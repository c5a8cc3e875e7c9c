package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	applogger "KeyZones/pkg/logger"
)

// SyncReport summarizes one pair of a candle export.
type SyncReport struct {
	Asset     models.Asset
	Timeframe models.Timeframe
	Rows      int
	Path      string
	Err       error
}

// CandleSync exports candles from the columnar store into the files the
// detector reads.
type CandleSync struct {
	store   domrepo.CandleStore
	writer  domrepo.CandleWriter
	symbol  func(models.Asset) string
	workers int
	l       *applogger.Logger
}

func NewCandleSync(store domrepo.CandleStore, writer domrepo.CandleWriter, symbol func(models.Asset) string, l *applogger.Logger) *CandleSync {
	if l == nil {
		l = applogger.Nop()
	}
	if symbol == nil {
		symbol = func(a models.Asset) string { return a.Name() }
	}
	return &CandleSync{store: store, writer: writer, symbol: symbol, workers: 2, l: l}
}

// Run exports every asset and timeframe within w. Pairs fail independently;
// the returned error is non-nil if any pair failed.
func (s *CandleSync) Run(ctx context.Context, w models.DateWindow) ([]SyncReport, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var pairs []SyncReport
	for _, a := range models.Assets() {
		for _, tf := range models.Timeframes() {
			pairs = append(pairs, SyncReport{Asset: a, Timeframe: tf})
		}
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range pairs {
		i := i
		g.Go(func() error {
			pairs[i] = s.syncOne(ctx, pairs[i].Asset, pairs[i].Timeframe, w)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range pairs {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return pairs, fmt.Errorf("candle sync: %d of %d pairs failed", failed, len(pairs))
	}
	return pairs, nil
}

func (s *CandleSync) syncOne(ctx context.Context, a models.Asset, tf models.Timeframe, w models.DateWindow) SyncReport {
	r := SyncReport{Asset: a, Timeframe: tf}
	start := time.Now()

	to := w.End
	if !to.IsZero() {
		// the end date is inclusive
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	candles, err := s.store.GetCandles(ctx, s.symbol(a), w.Start, to, tf)
	if err != nil {
		r.Err = err
		s.l.Error("candle sync read failed", applogger.String("asset", a.Name()), applogger.String("timeframe", tf.Label()), applogger.Error(err))
		return r
	}
	if len(candles) == 0 {
		r.Err = fmt.Errorf("%w: no rows for %s/%s", models.ErrCandlesMissing, a, tf)
		s.l.Warn("candle sync found no rows", applogger.String("asset", a.Name()), applogger.String("timeframe", tf.Label()))
		return r
	}

	p, err := s.writer.Write(ctx, a, tf, candles)
	if err != nil {
		r.Err = err
		s.l.Error("candle sync write failed", applogger.String("asset", a.Name()), applogger.String("timeframe", tf.Label()), applogger.Error(err))
		return r
	}
	r.Rows, r.Path = len(candles), p
	s.l.Info("candles exported",
		applogger.String("asset", a.Name()),
		applogger.String("timeframe", tf.Label()),
		applogger.Int("rows", r.Rows),
		applogger.String("path", p),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return r
}
