package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KeyZones/internal/domain/models"
)

type fakeCandleStore struct {
	mu      sync.Mutex
	symbols []string
	to      time.Time
	empty   models.Timeframe
}

func (f *fakeCandleStore) GetCandles(_ context.Context, symbol string, _, to time.Time, tf models.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	f.symbols = append(f.symbols, symbol)
	f.to = to
	f.mu.Unlock()
	if tf == f.empty {
		return nil, nil
	}
	return []models.Candle{{Symbol: symbol}}, nil
}

func (f *fakeCandleStore) Health(context.Context) error { return nil }

type fakeCandleWriter struct {
	mu     sync.Mutex
	writes int
	err    error
}

func (f *fakeCandleWriter) Write(_ context.Context, a models.Asset, tf models.Timeframe, _ []models.Candle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.writes++
	return a.Name() + "/" + tf.Label() + ".csv", nil
}

func TestCandleSyncExportsEveryPair(t *testing.T) {
	store := &fakeCandleStore{}
	writer := &fakeCandleWriter{}
	s := NewCandleSync(store, writer, func(a models.Asset) string { return a.Name() + "USDT" }, nil)

	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	reports, err := s.Run(context.Background(), models.DateWindow{End: end})
	require.NoError(t, err)
	assert.Len(t, reports, 12)
	assert.Equal(t, 12, writer.writes)
	assert.Contains(t, store.symbols, "ETHUSDT")
	assert.Equal(t, end.Add(24*time.Hour-time.Nanosecond), store.to)
	assert.Equal(t, "BTC/5m.csv", reports[0].Path)
}

func TestCandleSyncReportsEmptyPairs(t *testing.T) {
	store := &fakeCandleStore{empty: models.TF4h}
	s := NewCandleSync(store, &fakeCandleWriter{}, nil, nil)

	reports, err := s.Run(context.Background(), models.DateWindow{})
	require.Error(t, err)
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			assert.Equal(t, models.TF4h, r.Timeframe)
			assert.True(t, errors.Is(r.Err, models.ErrCandlesMissing))
		}
	}
	assert.Equal(t, 3, failed)
}

func TestCandleSyncRejectsReversedWindow(t *testing.T) {
	s := NewCandleSync(&fakeCandleStore{}, &fakeCandleWriter{}, nil, nil)
	_, err := s.Run(context.Background(), models.DateWindow{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, errors.Is(err, models.ErrInvalidDateInput))
}
