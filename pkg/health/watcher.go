package health

import (
	"context"
	"time"
)

// Watcher re-scans the pool on an interval: a full scan first, then
// recovery probes of unhealthy members between full scans.
type Watcher struct {
	checker  *Checker
	interval time.Duration
	stopCh   chan struct{}
}

// NewWatcher creates a watcher over the given checker.
func NewWatcher(checker *Checker, interval time.Duration) *Watcher {
	return &Watcher{
		checker:  checker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic scanning in a background goroutine.
func (w *Watcher) Start() {
	ticker := time.NewTicker(w.interval)
	go func() {
		// Scan immediately on start
		w.checker.Scan(context.Background(), ScanAll)

		full := false
		for {
			select {
			case <-ticker.C:
				mode := ScanUnhealthyOnly
				if full {
					mode = ScanAll
				}
				full = !full
				w.checker.Scan(context.Background(), mode)
			case <-w.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic scanning.
func (w *Watcher) Stop() {
	close(w.stopCh)
}
