package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
)

// Engine owns a set of monitors and their shared running bit.
type Engine struct {
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	monitors map[string]*Monitor
	wg       sync.WaitGroup
}

// NewEngine creates a stopped engine.
func NewEngine() *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:      ctx,
		cancel:   cancel,
		monitors: make(map[string]*Monitor),
	}
}

// Start flips the running bit. Call it before Add: a loop that observes a
// stopped engine exits.
func (e *Engine) Start() {
	e.running.Store(true)
	log.WithComponent("monitor").Info().Msg("monitor engine started")
}

// Stop flips the running bit and aborts all monitor loops at their next
// await point.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.cancel()
	e.wg.Wait()
	log.WithComponent("monitor").Info().Msg("monitor engine stopped")
}

// Add registers a monitor and spawns its polling loop, returning the
// receiver for its events.
func (e *Engine) Add(m *Monitor) <-chan Event {
	e.mu.Lock()
	e.monitors[m.product.ID] = m
	e.mu.Unlock()

	e.wg.Add(1)
	metrics.MonitorsActive.Inc()
	go func() {
		defer e.wg.Done()
		defer metrics.MonitorsActive.Dec()
		e.runLoop(m)
	}()

	return m.Events()
}

// Size returns the number of registered monitors.
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.monitors)
}

func (e *Engine) runLoop(m *Monitor) {
	logger := log.WithProductID(m.product.ID)
	logger.Info().
		Str("url", m.product.URL).
		Dur("interval", m.product.PollInterval).
		Msg("monitor loop started")

	defer func() {
		stats := m.Stats()
		logger.Debug().
			Int64("checks", stats.Checks).
			Dur("mean", stats.Mean()).
			Dur("min", stats.Min).
			Dur("max", stats.Max).
			Msg("monitor loop stopped")
	}()

	for {
		if !e.running.Load() {
			return
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(m.product.PollInterval):
		}

		available, details, err := m.check(e.ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("availability check exhausted retries")
			continue
		}
		m.observe(available, details)
	}
}
