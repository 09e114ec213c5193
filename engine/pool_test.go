package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/logging"
)

func newTestPool(limit int) *enginePool {
	return newEnginePool(limit, MockFactory(nil), fastRetry(1), logging.NoOpLogger{})
}

func TestEnginePool_ReusesLoadedEngine(t *testing.T) {
	p := newTestPool(3)
	ctx := context.Background()

	first, err := p.acquire(ctx, "tiny", BackendMock, nil)
	require.NoError(t, err)
	p.release("tiny", BackendMock)

	second, err := p.acquire(ctx, "tiny", BackendMock, nil)
	require.NoError(t, err)
	p.release("tiny", BackendMock)

	assert.Same(t, first, second)
	assert.Equal(t, 1, p.len())
}

func TestEnginePool_DistinctBackendsAreDistinctEntries(t *testing.T) {
	p := newTestPool(3)
	ctx := context.Background()

	_, err := p.acquire(ctx, "tiny", BackendMock, nil)
	require.NoError(t, err)
	_, err = p.acquire(ctx, "tiny", BackendCPU, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, p.len())
}

func TestEnginePool_EvictsLeastRecentlyUsed(t *testing.T) {
	p := newTestPool(2)
	ctx := context.Background()

	_, err := p.acquire(ctx, "a", BackendMock, nil)
	require.NoError(t, err)
	p.release("a", BackendMock)

	time.Sleep(2 * time.Millisecond)

	_, err = p.acquire(ctx, "b", BackendMock, nil)
	require.NoError(t, err)
	p.release("b", BackendMock)

	time.Sleep(2 * time.Millisecond)

	// Touch "a" so "b" becomes the eviction candidate.
	_, err = p.acquire(ctx, "a", BackendMock, nil)
	require.NoError(t, err)
	p.release("a", BackendMock)

	_, err = p.acquire(ctx, "c", BackendMock, nil)
	require.NoError(t, err)
	p.release("c", BackendMock)

	assert.Equal(t, 2, p.len())
	assert.True(t, p.contains("a", BackendMock))
	assert.True(t, p.contains("c", BackendMock))
	assert.False(t, p.contains("b", BackendMock))
}

func TestEnginePool_OverflowsInsteadOfEvictingActiveEngines(t *testing.T) {
	p := newTestPool(1)
	ctx := context.Background()

	// Held active, not released.
	_, err := p.acquire(ctx, "busy", BackendMock, nil)
	require.NoError(t, err)

	// With every entry active the insert still succeeds and the pool
	// transiently exceeds its bound.
	_, err = p.acquire(ctx, "other", BackendMock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.len())
	assert.True(t, p.contains("busy", BackendMock))
	assert.True(t, p.contains("other", BackendMock))

	// Once the busy engine is released the next insert evicts again.
	p.release("busy", BackendMock)
	p.release("other", BackendMock)
	_, err = p.acquire(ctx, "third", BackendMock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.len())
}

func TestEnginePool_RetriesTransientLoadFailure(t *testing.T) {
	calls := 0
	factory := func(modelID string, backend Backend) (Engine, error) {
		calls++
		m := NewMockEngine(modelID, backend)
		if calls == 1 {
			m.FailLoad(&core.InferenceError{Retryable: true, Err: errors.New("transient load")})
		}
		return m, nil
	}
	p := newEnginePool(1, factory, fastRetry(1), logging.NoOpLogger{})

	_, err := p.acquire(context.Background(), "tiny", BackendMock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "load must be retried after a transient failure")
}

func TestEnginePool_Shutdown(t *testing.T) {
	p := newTestPool(3)
	ctx := context.Background()

	_, err := p.acquire(ctx, "a", BackendMock, nil)
	require.NoError(t, err)
	_, err = p.acquire(ctx, "b", BackendMock, nil)
	require.NoError(t, err)

	p.shutdown()
	assert.Equal(t, 0, p.len())
}
