package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KeyZones/internal/domain/models"
)

func TestComputeAllFillsEveryPair(t *testing.T) {
	store := &stubStore{root: "/scratch"}
	det := &stubDetector{}
	det.fn = func(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
		assert.True(t, store.ensureDone.Load(), "store must exist before any detector call")
		return levelsFor(store, "100.0")(ctx, q)
	}

	o := NewZoneOrchestrator(store, det, WithWorkers(3))
	m, err := o.ComputeAll(context.Background(), BatchRequest{RequestID: 1, StartDate: "None", EndDate: "None"})
	require.NoError(t, err)

	assert.Equal(t, 12, m.Len())
	assert.Equal(t, 0, m.FailedCount())
	assert.Equal(t, int32(12), det.calls.Load())
	assert.Equal(t, int32(1), store.ensures.Load())
	assert.LessOrEqual(t, det.peak.Load(), int32(3))
	for _, a := range models.Assets() {
		for _, tf := range models.Timeframes() {
			r, ok := m.Get(a, tf)
			require.True(t, ok, "%s/%s missing", a, tf)
			assert.Equal(t, store.PathFor(a, tf), r.ArtifactPath)
		}
	}
}

func TestComputeAllIsolatesFailures(t *testing.T) {
	store := &stubStore{root: "/scratch"}
	det := &stubDetector{}
	det.fn = func(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
		if q.Asset == models.AssetETH && q.Timeframe == models.TF4h {
			return models.ZoneResult{}, models.NewDetectionError(q, []string{"Traceback"}, errors.New("exit status 1"))
		}
		return levelsFor(store, "1")(ctx, q)
	}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(), BatchRequest{RequestID: 2})
	require.NoError(t, err)

	assert.Equal(t, 12, m.Len())
	assert.Equal(t, 1, m.FailedCount())
	r, _ := m.Get(models.AssetETH, models.TF4h)
	assert.True(t, r.Failed)
	assert.True(t, errors.Is(r.Err, models.ErrDetectionFailed))
	assert.Equal(t, []string{"Traceback"}, r.Diagnostics)
	assert.Empty(t, r.Levels)

	ok, _ := m.Get(models.AssetETH, models.TF1h)
	assert.False(t, ok.Failed)
}

func TestComputeAllKeepsLevelOrderAndArtifact(t *testing.T) {
	store := &stubStore{root: "/scratch"}
	det := &stubDetector{fn: levelsFor(store, "100.0", "105.5")}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(), BatchRequest{RequestID: 3})
	require.NoError(t, err)

	r, ok := m.Get(models.AssetBTC, models.TF1h)
	require.True(t, ok)
	assert.Equal(t, []string{"100.0", "105.5"}, r.Levels)
	assert.Equal(t, "/scratch/levels_BTC_1h.png", r.ArtifactPath)
}

func TestComputeAllAbortsWhenStoreFails(t *testing.T) {
	store := &stubStore{ensureErr: models.ErrArtifactStore}
	det := &stubDetector{fn: levelsFor(store)}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(), BatchRequest{RequestID: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrArtifactStore))
	assert.Nil(t, m)
	assert.Equal(t, int32(0), det.calls.Load())
}

func TestComputeAllReversedWindowFailsEveryPair(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{fn: levelsFor(store)}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(),
		BatchRequest{RequestID: 5, StartDate: "2024-03-01", EndDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, 12, m.Len())
	assert.Equal(t, 12, m.FailedCount())
	assert.Equal(t, int32(0), det.calls.Load())
	m.Each(func(r models.ZoneResult) {
		assert.True(t, errors.Is(r.Err, models.ErrInvalidDateInput))
	})
}

func TestComputeAllDegradesMalformedDates(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{fn: levelsFor(store, "1")}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(),
		BatchRequest{RequestID: 6, StartDate: "not-a-date", EndDate: "2024-02-01"})
	require.NoError(t, err)

	assert.Equal(t, 0, m.FailedCount())
	require.Len(t, m.Warnings, 1)
	assert.True(t, m.Window.Start.IsZero())
	for _, q := range det.queries {
		assert.True(t, q.Window.Start.IsZero())
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), q.Window.End)
	}
}

func TestComputeAllPassesConfiguredPercents(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{fn: levelsFor(store)}

	_, err := NewZoneOrchestrator(store, det, WithPercents(2.5, 1)).ComputeAll(context.Background(), BatchRequest{})
	require.NoError(t, err)
	for _, q := range det.queries {
		assert.Equal(t, 2.5, q.ZoneSizePercent)
		assert.Equal(t, 1.0, q.MergeDistancePercent)
	}
}

func TestComputeAllRecoversDetectorPanic(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{}
	det.fn = func(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
		if q.Asset == models.AssetSOL && q.Timeframe == models.TF5m {
			panic("index out of range")
		}
		return levelsFor(store, "1")(ctx, q)
	}

	m, err := NewZoneOrchestrator(store, det).ComputeAll(context.Background(), BatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.FailedCount())
	r, _ := m.Get(models.AssetSOL, models.TF5m)
	assert.True(t, errors.Is(r.Err, models.ErrDetectionFailed))
}

func TestComputeAllCallTimeout(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{}
	det.fn = func(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
		if q.Timeframe == models.TF5m {
			<-ctx.Done()
			return models.ZoneResult{}, models.NewDetectionError(q, nil, ctx.Err())
		}
		return levelsFor(store, "1")(ctx, q)
	}

	m, err := NewZoneOrchestrator(store, det, WithCallTimeout(20*time.Millisecond)).
		ComputeAll(context.Background(), BatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, m.FailedCount())
}

func TestComputeAllCancelledContext(t *testing.T) {
	store := &stubStore{}
	det := &stubDetector{fn: levelsFor(store, "1")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := NewZoneOrchestrator(store, det).ComputeAll(ctx, BatchRequest{RequestID: 9})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, m)
	assert.Equal(t, 12, m.FailedCount())
	assert.Equal(t, int32(0), det.calls.Load())
}

func TestComputeOne(t *testing.T) {
	store := &stubStore{root: "/scratch"}
	det := &stubDetector{fn: levelsFor(store, "42")}

	r, err := NewZoneOrchestrator(store, det).ComputeOne(context.Background(), models.AssetSOL, models.TF15m, models.DateWindow{})
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, r.Levels)
	assert.Equal(t, "/scratch/levels_SOL_15m.png", r.ArtifactPath)
}
