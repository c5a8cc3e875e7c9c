package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
)

// CandleTimeLayout is how open and close times are written; the detector
// parses them as datetimes and slices by date.
const CandleTimeLayout = "2006-01-02 15:04:05"

var _ domrepo.CandleWriter = (*CSVCandleWriter)(nil)

type candleRow struct {
	OpenTime  string `csv:"open_time"`
	CloseTime string `csv:"close_time"`
	Open      string `csv:"open"`
	High      string `csv:"high"`
	Low       string `csv:"low"`
	Close     string `csv:"close"`
	Volume    string `csv:"volume"`
}

// CSVCandleWriter writes candles in the layout FSCandleSource reads.
type CSVCandleWriter struct {
	source *FSCandleSource
}

func NewCSVCandleWriter(source *FSCandleSource) *CSVCandleWriter {
	return &CSVCandleWriter{source: source}
}

// Write replaces the timeframe file atomically and returns its path.
func (w *CSVCandleWriter) Write(ctx context.Context, a models.Asset, tf models.Timeframe, candles []models.Candle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := w.source.Path(a)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create candle dir: %w", err)
	}

	rows := make([]*candleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, &candleRow{
			OpenTime:  c.OpenTime.UTC().Format(CandleTimeLayout),
			CloseTime: c.CloseTime.UTC().Format(CandleTimeLayout),
			Open:      formatPrice(c.Open),
			High:      formatPrice(c.High),
			Low:       formatPrice(c.Low),
			Close:     formatPrice(c.Close),
			Volume:    formatPrice(c.Volume),
		})
	}

	tmp, err := os.CreateTemp(dir, "."+tf.Label()+"-*.csv")
	if err != nil {
		return "", fmt.Errorf("create temp csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("marshal candles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp csv: %w", err)
	}

	dst := w.source.File(a, tf)
	if err := os.Rename(tmp.Name(), filepath.Clean(dst)); err != nil {
		return "", fmt.Errorf("replace %s: %w", dst, err)
	}
	return dst, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
