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

// gatedRunner blocks each batch until its gate is released. Cancellation is
// ignored so a slow batch can finish after a newer one.
type gatedRunner struct {
	mu      sync.Mutex
	gates   map[uint64]chan struct{}
	started chan uint64
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{gates: make(map[uint64]chan struct{}), started: make(chan uint64, 8)}
}

func (r *gatedRunner) gate(id uint64) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[id]
	if !ok {
		g = make(chan struct{})
		r.gates[id] = g
	}
	return g
}

func (r *gatedRunner) release(id uint64) { close(r.gate(id)) }

func (r *gatedRunner) ComputeAll(_ context.Context, req BatchRequest) (*models.ResultMatrix, error) {
	r.started <- req.RequestID
	<-r.gate(req.RequestID)
	return models.NewResultMatrix(req.RequestID, models.DateWindow{}), nil
}

func waitStarted(t *testing.T, r *gatedRunner, id uint64) {
	t.Helper()
	select {
	case got := <-r.started:
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("batch %d never started", id)
	}
}

func TestStaleBatchIsDiscarded(t *testing.T) {
	runner := newGatedRunner()
	pub := &recordingPublisher{}
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{}, WithPublishers(pub))

	id1, err := c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)
	waitStarted(t, runner, id1)

	id2, err := c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)
	waitStarted(t, runner, id2)
	assert.Greater(t, id2, id1)

	runner.release(id2)
	require.Eventually(t, func() bool { return c.Latest() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, id2, c.Latest().RequestID)

	runner.release(id1)
	c.Wait()

	assert.Equal(t, id2, c.Latest().RequestID)
	assert.Equal(t, []uint64{id2}, pub.published())
}

func TestRefreshReportsSuperseded(t *testing.T) {
	runner := newGatedRunner()
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{})

	type out struct {
		m   *models.ResultMatrix
		err error
	}
	done := make(chan out, 1)
	go func() {
		m, err := c.Refresh(context.Background(), "None", "None")
		done <- out{m, err}
	}()
	waitStarted(t, runner, 1)

	id2, err := c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)
	waitStarted(t, runner, id2)

	runner.release(1)
	res := <-done
	assert.True(t, errors.Is(res.err, ErrSuperseded))
	require.NotNil(t, res.m)
	assert.Equal(t, uint64(1), res.m.RequestID)
	assert.Nil(t, c.Latest())

	runner.release(id2)
	c.Wait()
	assert.Equal(t, id2, c.Latest().RequestID)
}

func TestTriggerCancelsPreviousBatch(t *testing.T) {
	cancelled := make(chan uint64, 1)
	runner := runnerFunc(func(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error) {
		if req.RequestID == 1 {
			<-ctx.Done()
			cancelled <- req.RequestID
			return models.NewResultMatrix(req.RequestID, models.DateWindow{}), ctx.Err()
		}
		return models.NewResultMatrix(req.RequestID, models.DateWindow{}), nil
	})
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{})

	_, err := c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)

	select {
	case id := <-cancelled:
		assert.Equal(t, uint64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("first batch was not cancelled")
	}
	c.Wait()
	assert.Equal(t, uint64(2), c.Latest().RequestID)
}

func TestPublisherErrorKeepsResult(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, req BatchRequest) (*models.ResultMatrix, error) {
		return models.NewResultMatrix(req.RequestID, models.DateWindow{}), nil
	})
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{}, WithPublishers(pub))

	m, err := c.Refresh(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, m, c.Latest())
	assert.Equal(t, []uint64{1}, pub.published())
}

func TestRunnerErrorIsReturned(t *testing.T) {
	runner := runnerFunc(func(context.Context, BatchRequest) (*models.ResultMatrix, error) {
		return nil, models.ErrArtifactStore
	})
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{})

	_, err := c.Refresh(context.Background(), "", "")
	assert.True(t, errors.Is(err, models.ErrArtifactStore))
	assert.Nil(t, c.Latest())
}

func TestCloseClearsStoreAndRejectsNewBatches(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, req BatchRequest) (*models.ResultMatrix, error) {
		return models.NewResultMatrix(req.RequestID, models.DateWindow{}), nil
	})
	store := &stubStore{}
	c := NewRefreshCoordinator(runner, &stubSequencer{}, store, WithClearOnClose(true))

	_, err := c.Refresh(context.Background(), "", "")
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, int32(1), store.clears.Load())

	_, err = c.Trigger(context.Background(), "", "")
	assert.Error(t, err)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, int32(1), store.clears.Load())
}

func TestCloseCancelsRunningBatch(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewRefreshCoordinator(runner, &stubSequencer{}, &stubStore{})

	_, err := c.Trigger(context.Background(), "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
}

type runnerFunc func(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error)

func (f runnerFunc) ComputeAll(ctx context.Context, req BatchRequest) (*models.ResultMatrix, error) {
	return f(ctx, req)
}

func TestClearArtifactsRefusedWhileBatchRuns(t *testing.T) {
	runner := newGatedRunner()
	store := &stubStore{}
	c := NewRefreshCoordinator(runner, &stubSequencer{}, store)

	id, err := c.Trigger(context.Background(), "None", "None")
	require.NoError(t, err)
	waitStarted(t, runner, id)

	assert.ErrorIs(t, c.ClearArtifacts(context.Background()), ErrBatchRunning)
	assert.Equal(t, int32(0), store.clears.Load())

	runner.release(id)
	c.Wait()
	require.NoError(t, c.ClearArtifacts(context.Background()))
	assert.Equal(t, int32(1), store.clears.Load())
}
