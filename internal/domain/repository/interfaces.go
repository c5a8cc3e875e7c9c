package repository

import (
	"context"
	"io"
	"time"

	"KeyZones/internal/domain/models"
)

// ArtifactStore owns the scratch directory chart images are written to.
type ArtifactStore interface {
	Ensure(ctx context.Context) error // create the directory if missing, idempotent
	Clear(ctx context.Context) error  // remove the directory and everything in it
	PathFor(a models.Asset, tf models.Timeframe) string
	Open(a models.Asset, tf models.Timeframe) (io.ReadCloser, error)
	Root() string
}

// CandleSource locates the on-disk candle data the detector reads.
type CandleSource interface {
	Path(a models.Asset) string
	Check(a models.Asset, tf models.Timeframe) error
}

// Sequencer hands out monotonically increasing request ids.
type Sequencer interface {
	Next(ctx context.Context) (uint64, error)
}

// ResultPublisher receives every batch that is accepted as the latest.
type ResultPublisher interface {
	Publish(ctx context.Context, m *models.ResultMatrix) error
}

// CandleStore provides read-only access to candles kept in a columnar store.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf models.Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
}

// CandleWriter persists candles where the detector can read them.
type CandleWriter interface {
	Write(ctx context.Context, a models.Asset, tf models.Timeframe, candles []models.Candle) (string, error)
}

type Metrics interface {
	RecordDetection(asset, timeframe string, failed bool)
	RecordLatency(op string, seconds float64)
	RecordBatch(failed int, seconds float64)
	RecordStaleDiscard()
	RecordError(kind string)
}
