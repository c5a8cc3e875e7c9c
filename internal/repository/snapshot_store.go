package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	"KeyZones/pkg/cache"
)

var _ domrepo.ResultPublisher = (*CacheSnapshotStore)(nil)

const (
	snapshotLockTTL   = 5 * time.Second
	snapshotLockRetry = 10 * time.Millisecond
)

// CacheSnapshotStore keeps the view of the latest published matrix in the
// cache so other instances (Redis backend) can serve it.
type CacheSnapshotStore struct {
	c   cache.Service
	key string
}

func NewCacheSnapshotStore(c cache.Service) *CacheSnapshotStore {
	return &CacheSnapshotStore{c: c, key: "latest_matrix"}
}

// Publish overwrites the snapshot unless a newer one is already stored. The
// compare and the write run under a cache lock shared by every instance.
func (s *CacheSnapshotStore) Publish(ctx context.Context, m *models.ResultMatrix) error {
	if err := s.lock(ctx); err != nil {
		return fmt.Errorf("store snapshot %d: %w", m.RequestID, err)
	}
	defer func() {
		// a lock left behind expires after snapshotLockTTL
		_ = s.c.Unlock(context.WithoutCancel(ctx), s.lockKey())
	}()

	cur, err := s.Latest(ctx)
	if err != nil {
		return err
	}
	if cur != nil && cur.RequestID > m.RequestID {
		return nil
	}
	if err := s.c.Set(ctx, s.key, m.View(), 0); err != nil {
		return fmt.Errorf("store snapshot %d: %w", m.RequestID, err)
	}
	return nil
}

// Latest returns the stored snapshot, or nil when there is none.
func (s *CacheSnapshotStore) Latest(ctx context.Context) (*models.MatrixView, error) {
	var v models.MatrixView
	if err := s.c.Get(ctx, s.key, &v); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &v, nil
}

func (s *CacheSnapshotStore) lockKey() string { return s.key + ":lock" }

func (s *CacheSnapshotStore) lock(ctx context.Context) error {
	ticker := time.NewTicker(snapshotLockRetry)
	defer ticker.Stop()
	for {
		ok, err := s.c.TryLock(ctx, s.lockKey(), snapshotLockTTL)
		if err != nil {
			return fmt.Errorf("lock snapshot: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock snapshot: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
