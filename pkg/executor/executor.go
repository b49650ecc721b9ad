// Package executor runs named units of work under a concurrency cap with
// graceful broadcast shutdown.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Lothbrok303/lazabot-ubu/pkg/cache"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/storage"
	"sync/atomic"
)

// ErrShuttingDown is returned by Submit once shutdown has begun.
var ErrShuttingDown = errors.New("executor is shutting down")

// Unit is one asynchronous computation. It should honor ctx cancellation at
// its blocking points.
type Unit func(ctx context.Context) (json.RawMessage, error)

// Result is the caller-visible state of a submitted task.
type Result struct {
	TaskID      uint64
	Name        string
	Status      storage.TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      json.RawMessage
	Error       string
}

func isTerminal(s storage.TaskStatus) bool {
	return s == storage.TaskCompleted || s == storage.TaskFailed || s == storage.TaskCancelled
}

// Executor bounds concurrent task execution with a counting semaphore.
type Executor struct {
	capacity int64
	sem      *semaphore.Weighted
	nextID   atomic.Uint64
	running  atomic.Int64

	results cache.Cache[uint64, Result]

	shuttingDown   atomic.Bool
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc

	store *storage.Store

	grace time.Duration
	poll  time.Duration
}

// New creates an executor allowing at most maxConcurrent tasks in Running
// state at once.
func New(maxConcurrent int64) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		capacity:       maxConcurrent,
		sem:            semaphore.NewWeighted(maxConcurrent),
		results:        cache.New[uint64, Result]("executor-results"),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		inflight:       make(map[uint64]context.CancelFunc),
		grace:          30 * time.Second,
		poll:           100 * time.Millisecond,
	}
}

// WithStore mirrors task state transitions into the persistence store.
func (e *Executor) WithStore(store *storage.Store) *Executor {
	e.store = store
	return e
}

// WithShutdownGrace overrides the 30s shutdown grace window, used by tests.
func (e *Executor) WithShutdownGrace(grace, poll time.Duration) *Executor {
	e.grace = grace
	e.poll = poll
	return e
}

// Submit queues a unit for execution and returns its task id. Submissions
// are refused once shutdown has begun.
func (e *Executor) Submit(name string, unit Unit) (uint64, error) {
	if e.shuttingDown.Load() {
		metrics.TasksRejected.Inc()
		return 0, ErrShuttingDown
	}

	id := e.nextID.Add(1)
	e.setResult(Result{TaskID: id, Name: name, Status: storage.TaskPending})
	e.persistInsert(id, name)

	taskCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.inflight[id] = cancel
	e.mu.Unlock()

	metrics.TasksSubmitted.Inc()
	go e.run(id, name, unit, taskCtx)

	return id, nil
}

func (e *Executor) run(id uint64, name string, unit Unit, taskCtx context.Context) {
	defer e.removeInflight(id)
	logger := log.WithTaskID(id)

	if !e.sem.TryAcquire(1) {
		// Contend for a permit, losing to shutdown if it fires first.
		if err := e.sem.Acquire(e.shutdownCtx, 1); err != nil {
			e.transition(id, storage.TaskCancelled, nil, "cancelled before start")
			return
		}
	}
	defer e.sem.Release(1)

	if e.shuttingDown.Load() {
		e.transition(id, storage.TaskCancelled, nil, "cancelled before start")
		return
	}

	metrics.ActiveTasks.Set(float64(e.running.Add(1)))
	defer func() { metrics.ActiveTasks.Set(float64(e.running.Add(-1))) }()

	now := time.Now().UTC()
	if res, ok := e.results.Get(id); ok {
		res.Status = storage.TaskRunning
		res.StartedAt = &now
		e.setResult(res)
	}
	e.persistStatus(id, storage.TaskRunning, "")
	logger.Debug().Str("name", name).Msg("task running")

	type outcome struct {
		output json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := unit(taskCtx)
		done <- outcome{output, err}
	}()

	select {
	case <-e.shutdownCtx.Done():
		e.transition(id, storage.TaskCancelled, nil, "cancelled by shutdown")
	case out := <-done:
		if out.err != nil {
			e.transition(id, storage.TaskFailed, nil, out.err.Error())
			logger.Warn().Str("name", name).Err(out.err).Msg("task failed")
		} else {
			e.transition(id, storage.TaskCompleted, out.output, "")
			logger.Debug().Str("name", name).Msg("task completed")
		}
	}
}

// Shutdown refuses new work, broadcasts cancellation, waits out the grace
// window, then aborts any stragglers.
func (e *Executor) Shutdown() {
	e.shuttingDown.Store(true)
	e.shutdownCancel()

	deadline := time.Now().Add(e.grace)
	for time.Now().Before(deadline) {
		if e.inflightCount() == 0 {
			return
		}
		time.Sleep(e.poll)
	}

	e.mu.Lock()
	remaining := make([]context.CancelFunc, 0, len(e.inflight))
	count := len(e.inflight)
	for _, cancel := range e.inflight {
		remaining = append(remaining, cancel)
	}
	e.mu.Unlock()

	if count > 0 {
		log.WithComponent("executor").Warn().
			Int("remaining", count).
			Msg("grace window elapsed, aborting remaining tasks")
	}
	for _, cancel := range remaining {
		cancel()
	}
}

// Get returns the result for a task id.
func (e *Executor) Get(id uint64) (Result, bool) {
	return e.results.Get(id)
}

// All returns every known result.
func (e *Executor) All() []Result {
	return e.results.Values()
}

// ByStatus returns results currently in the given status.
func (e *Executor) ByStatus(status storage.TaskStatus) []Result {
	var out []Result
	e.results.ForEach(func(_ uint64, r Result) {
		if r.Status == status {
			out = append(out, r)
		}
	})
	return out
}

// Counts returns the number of results per status.
func (e *Executor) Counts() map[storage.TaskStatus]int {
	counts := make(map[storage.TaskStatus]int)
	e.results.ForEach(func(_ uint64, r Result) {
		counts[r.Status]++
	})
	return counts
}

// Capacity returns the configured concurrency cap.
func (e *Executor) Capacity() int64 {
	return e.capacity
}

// AvailablePermits returns how many more tasks could run right now.
func (e *Executor) AvailablePermits() int64 {
	return e.capacity - e.running.Load()
}

// transition stores a terminal state unless the task already reached one.
func (e *Executor) transition(id uint64, status storage.TaskStatus, output json.RawMessage, errText string) {
	res, ok := e.results.Get(id)
	if !ok || isTerminal(res.Status) {
		return
	}

	now := time.Now().UTC()
	res.Status = status
	res.CompletedAt = &now
	res.Output = output
	res.Error = errText
	e.setResult(res)
	e.persistStatus(id, status, errText)
}

func (e *Executor) setResult(res Result) {
	e.results.Set(res.TaskID, res)
	for status, count := range e.Counts() {
		metrics.TasksTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (e *Executor) removeInflight(id uint64) {
	e.mu.Lock()
	cancel, ok := e.inflight[id]
	delete(e.inflight, id)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Executor) inflightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

func (e *Executor) persistInsert(id uint64, name string) {
	if e.store == nil {
		return
	}
	meta, _ := json.Marshal(map[string]string{"name": name})
	if _, err := e.store.InsertTask(id, string(meta)); err != nil {
		log.WithTaskID(id).Warn().Err(err).Msg("failed to persist task")
	}
}

func (e *Executor) persistStatus(id uint64, status storage.TaskStatus, errText string) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateTaskStatus(id, status, errText); err != nil {
		log.WithTaskID(id).Warn().Err(err).Msg("failed to persist task status")
	}
}
