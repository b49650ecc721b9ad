package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lothbrok303/lazabot-ubu/pkg/storage"
)

func waitForStatus(t *testing.T, e *Executor, id uint64, status storage.TaskStatus) Result {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if res, ok := e.Get(id); ok && res.Status == status {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
	res, _ := e.Get(id)
	t.Fatalf("task %d never reached %s (currently %s)", id, status, res.Status)
	return Result{}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	e := New(2)
	defer e.Shutdown()

	id, err := e.Submit("greet", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"greeting":"hello"}`), nil
	})
	require.NoError(t, err)

	res := waitForStatus(t, e, id, storage.TaskCompleted)
	assert.Equal(t, "greet", res.Name)
	assert.JSONEq(t, `{"greeting":"hello"}`, string(res.Output))
	require.NotNil(t, res.StartedAt)
	require.NotNil(t, res.CompletedAt)
	assert.False(t, res.CompletedAt.Before(*res.StartedAt))
}

func TestFailedTaskRecordsError(t *testing.T) {
	e := New(1)
	defer e.Shutdown()

	id, err := e.Submit("doomed", func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("network down")
	})
	require.NoError(t, err)

	res := waitForStatus(t, e, id, storage.TaskFailed)
	assert.Equal(t, "network down", res.Error)
}

func TestTaskIDsStrictlyIncreasing(t *testing.T) {
	e := New(4)
	defer e.Shutdown()

	var prev uint64
	for i := 0; i < 20; i++ {
		id, err := e.Submit("noop", func(ctx context.Context) (json.RawMessage, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestRunningNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	e := New(capacity)
	defer e.Shutdown()

	var running, peak atomic.Int64
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		_, err := e.Submit("held", func(ctx context.Context) (json.RawMessage, error) {
			defer wg.Done()
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, running.Load(), int64(capacity))
	assert.Equal(t, int64(0), e.AvailablePermits())

	close(release)
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
}

func TestSubmitRefusedAfterShutdown(t *testing.T) {
	e := New(1).WithShutdownGrace(100*time.Millisecond, 10*time.Millisecond)
	e.Shutdown()

	_, err := e.Submit("late", func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownCancelsQueuedTasks(t *testing.T) {
	e := New(1).WithShutdownGrace(2*time.Second, 10*time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker, err := e.Submit("blocker", func(ctx context.Context) (json.RawMessage, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	// Queued behind the blocker; never gets a permit.
	queued, err := e.Submit("queued", func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	e.Shutdown()

	res, ok := e.Get(queued)
	require.True(t, ok)
	assert.Equal(t, storage.TaskCancelled, res.Status)

	res, ok = e.Get(blocker)
	require.True(t, ok)
	assert.Contains(t, []storage.TaskStatus{storage.TaskCancelled, storage.TaskCompleted}, res.Status)
}

func TestTerminalStateDoesNotChange(t *testing.T) {
	e := New(1)

	id, err := e.Submit("quick", func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, e, id, storage.TaskCompleted)

	e.Shutdown()

	res, ok := e.Get(id)
	require.True(t, ok)
	assert.Equal(t, storage.TaskCompleted, res.Status)
}

func TestQueries(t *testing.T) {
	e := New(2)
	defer e.Shutdown()

	ok1, err := e.Submit("ok", func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	bad, err := e.Submit("bad", func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("nope")
	})
	require.NoError(t, err)

	waitForStatus(t, e, ok1, storage.TaskCompleted)
	waitForStatus(t, e, bad, storage.TaskFailed)

	assert.Len(t, e.All(), 2)
	assert.Len(t, e.ByStatus(storage.TaskCompleted), 1)
	assert.Len(t, e.ByStatus(storage.TaskFailed), 1)

	counts := e.Counts()
	assert.Equal(t, 1, counts[storage.TaskCompleted])
	assert.Equal(t, 1, counts[storage.TaskFailed])

	assert.Equal(t, int64(2), e.Capacity())
	assert.Equal(t, int64(2), e.AvailablePermits())
}

func TestStoreMirrorsTransitions(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	e := New(1).WithStore(store)
	defer e.Shutdown()

	id, err := e.Submit("persisted", func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, e, id, storage.TaskCompleted)

	// The in-memory result is terminal; the durable row follows.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := store.GetTask(id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		if rec.Status == storage.TaskCompleted {
			assert.NotNil(t, rec.CompletedAt)
			assert.Contains(t, rec.Metadata, "persisted")
			break
		}
		require.True(t, time.Now().Before(deadline), "durable row never completed")
		time.Sleep(10 * time.Millisecond)
	}
}
