package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_uptime_seconds",
			Help: "Seconds since process start",
		},
	)

	ActiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_active_tasks",
			Help: "Number of executor tasks currently running",
		},
	)

	RequestsPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_requests_per_second",
			Help: "HTTP request rate over the last collection interval",
		},
	)
)

func init() {
	prometheus.MustRegister(UptimeSeconds)
	prometheus.MustRegister(ActiveTasks)
	prometheus.MustRegister(RequestsPerSecond)
}

var (
	startTime        = time.Now()
	requestsObserved atomic.Int64
)

// RecordRequest counts one HTTP request attempt and its outcome.
func RecordRequest(success bool) {
	RequestsTotal.Inc()
	if success {
		RequestsSuccessTotal.Inc()
	} else {
		RequestsFailedTotal.Inc()
	}
	requestsObserved.Add(1)
}

// Collector periodically derives the rate and uptime gauges.
type Collector struct {
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector with the given refresh interval.
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		last := requestsObserved.Load()
		for {
			select {
			case <-ticker.C:
				UptimeSeconds.Set(time.Since(startTime).Seconds())
				now := requestsObserved.Load()
				RequestsPerSecond.Set(float64(now-last) / c.interval.Seconds())
				last = now
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}
