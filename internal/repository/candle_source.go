package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
)

var _ domrepo.CandleSource = (*FSCandleSource)(nil)

// FSCandleSource lays candle data out as <data>/<asset>/candles/<timeframe>.csv.
type FSCandleSource struct {
	dataDir string
}

func NewFSCandleSource(dataDir string) *FSCandleSource {
	return &FSCandleSource{dataDir: filepath.Clean(dataDir)}
}

// Path is the candle directory passed to the detector for an asset.
func (s *FSCandleSource) Path(a models.Asset) string {
	return filepath.Join(s.dataDir, a.PathSegment(), "candles")
}

// File is the CSV holding one timeframe's candles.
func (s *FSCandleSource) File(a models.Asset, tf models.Timeframe) string {
	return filepath.Join(s.Path(a), tf.Label()+".csv")
}

// Check reports ErrCandlesMissing when the timeframe file is absent or empty.
func (s *FSCandleSource) Check(a models.Asset, tf models.Timeframe) error {
	p := s.File(a, tf)
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", models.ErrCandlesMissing, p)
		}
		return fmt.Errorf("stat %s: %w", p, err)
	}
	if st.IsDir() || st.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", models.ErrCandlesMissing, p)
	}
	return nil
}
