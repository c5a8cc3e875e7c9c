package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	applogger "KeyZones/pkg/logger"
)

var _ domrepo.ArtifactStore = (*FSArtifactStore)(nil)

// FSArtifactStore keeps chart images in a single scratch directory, one file
// per asset and timeframe: levels_<asset>_<timeframe>.png.
type FSArtifactStore struct {
	root string
	mu   sync.Mutex
	l    *applogger.Logger
}

func NewFSArtifactStore(root string, l *applogger.Logger) *FSArtifactStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FSArtifactStore{root: filepath.Clean(root), l: l}
}

func (s *FSArtifactStore) Root() string { return s.root }

// Ensure creates the directory if missing. Calling it on an existing
// directory is a no-op.
func (s *FSArtifactStore) Ensure(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		s.l.Error("artifact store ensure failed", applogger.String("root", s.root), applogger.Error(err))
		return fmt.Errorf("%w: ensure %s: %v", models.ErrArtifactStore, s.root, err)
	}
	st, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", models.ErrArtifactStore, s.root, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", models.ErrArtifactStore, s.root)
	}
	return nil
}

// Clear removes the directory and everything in it. A missing directory is
// not an error.
func (s *FSArtifactStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		s.l.Error("artifact store clear failed", applogger.String("root", s.root), applogger.Error(err))
		return fmt.Errorf("%w: clear %s: %v", models.ErrArtifactStore, s.root, err)
	}
	s.l.Debug("artifact store cleared", applogger.String("root", s.root))
	return nil
}

func (s *FSArtifactStore) PathFor(a models.Asset, tf models.Timeframe) string {
	return filepath.Join(s.root, fmt.Sprintf("levels_%s_%s.png", a.Name(), tf.Label()))
}

// Open returns the artifact for a pair. A missing file wraps fs.ErrNotExist.
func (s *FSArtifactStore) Open(a models.Asset, tf models.Timeframe) (io.ReadCloser, error) {
	f, err := os.Open(s.PathFor(a, tf))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s/%s: %w", a, tf, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("%w: open artifact %s/%s: %v", models.ErrArtifactStore, a, tf, err)
	}
	return f, nil
}
