package repository

import (
	"context"
	"fmt"

	domrepo "KeyZones/internal/domain/repository"
	"KeyZones/pkg/cache"
)

var _ domrepo.Sequencer = (*CacheSequencer)(nil)

// CacheSequencer issues request ids from an atomic counter in the cache.
// Backed by MemoryCache the ids are process-local; backed by RedisCache they
// are shared by every instance.
type CacheSequencer struct {
	c   cache.Service
	key string
}

func NewCacheSequencer(c cache.Service) *CacheSequencer {
	return &CacheSequencer{c: c, key: "batch_seq"}
}

func (s *CacheSequencer) Next(ctx context.Context) (uint64, error) {
	n, err := s.c.Increment(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("next request id: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("next request id: counter returned %d", n)
	}
	return uint64(n), nil
}
