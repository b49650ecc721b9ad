// Package monitor polls product pages and emits events on availability
// transitions.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

// Product describes one monitoring target.
type Product struct {
	ID           string
	URL          string
	Name         string
	TargetPrice  *float64
	MinStock     *int
	PollInterval time.Duration
	Timeout      time.Duration
	MaxRetries   int
}

// Event reports an availability transition for a product.
type Event struct {
	ProductID string
	URL       string
	Timestamp time.Time
	Price     *float64
	Stock     *int
	Available bool
}

// unavailablePhrases mark a 200 page as out of stock when present anywhere
// in the lowercased body.
var unavailablePhrases = []string{
	"out of stock",
	"sold out",
	"unavailable",
	"not available",
	"temporarily unavailable",
}

// interpretAvailability decides availability from a response: a 200 whose
// body carries none of the unavailable phrases counts as available.
func interpretAvailability(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, phrase := range unavailablePhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

// pageDetails is the optional structured payload some product pages expose.
type pageDetails struct {
	Price *float64 `json:"price"`
	Stock *int     `json:"stock"`
}

func extractDetails(body []byte) pageDetails {
	var d pageDetails
	_ = json.Unmarshal(body, &d)
	return d
}

// Stats aggregates check timings for one monitor.
type Stats struct {
	Checks int64
	Total  time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Mean returns the average check duration, zero before the first check.
func (s Stats) Mean() time.Duration {
	if s.Checks == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Checks)
}

// Monitor polls one product.
type Monitor struct {
	product Product
	client  *httpclient.Client
	pool    *proxy.Pool

	events        chan Event
	lastAvailable bool
	retryBase     time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// NewMonitor creates a monitor for a product. The proxy pool may be nil.
func NewMonitor(product Product, client *httpclient.Client, pool *proxy.Pool) *Monitor {
	if product.PollInterval <= 0 {
		product.PollInterval = time.Second
	}
	if product.Timeout <= 0 {
		product.Timeout = 30 * time.Second
	}
	return &Monitor{
		product:   product,
		client:    client,
		pool:      pool,
		events:    make(chan Event, 16),
		retryBase: time.Second,
	}
}

// Events returns the receiver for this monitor's transition events.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Stats returns a snapshot of this monitor's check timings.
func (m *Monitor) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

func (m *Monitor) recordCheck(elapsed time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.Checks++
	m.stats.Total += elapsed
	if m.stats.Min == 0 || elapsed < m.stats.Min {
		m.stats.Min = elapsed
	}
	if elapsed > m.stats.Max {
		m.stats.Max = elapsed
	}
}

// check performs one availability check with linear-backoff retries on
// transport errors.
func (m *Monitor) check(ctx context.Context) (bool, pageDetails, error) {
	logger := log.WithProductID(m.product.ID)
	start := time.Now()
	defer func() { m.recordCheck(time.Since(start)) }()

	var lastErr error
	for attempt := 0; attempt <= m.product.MaxRetries; attempt++ {
		var ep *proxy.Endpoint
		if m.pool != nil {
			if next, ok := m.pool.Next(); ok {
				ep = &next
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, m.product.Timeout)
		resp, err := m.client.Do(reqCtx, http.MethodGet, m.product.URL, nil, nil, ep)
		cancel()

		if err == nil {
			available := interpretAvailability(resp.Status, resp.Body)
			outcome := "unavailable"
			if available {
				outcome = "available"
			}
			metrics.MonitorChecksTotal.WithLabelValues(outcome).Inc()
			return available, extractDetails(resp.Body), nil
		}

		lastErr = err
		metrics.MonitorChecksTotal.WithLabelValues("error").Inc()
		logger.Debug().Int("attempt", attempt+1).Err(err).Msg("availability check failed")

		if attempt == m.product.MaxRetries {
			break
		}
		select {
		case <-time.After(m.retryBase * time.Duration(attempt+1)):
		case <-ctx.Done():
			return false, pageDetails{}, ctx.Err()
		}
	}

	return false, pageDetails{}, lastErr
}

// observe folds one check outcome into the monitor state, emitting an event
// on transitions. Events are dropped when the receiver lags.
func (m *Monitor) observe(available bool, details pageDetails) {
	if available == m.lastAvailable {
		return
	}
	m.lastAvailable = available

	event := Event{
		ProductID: m.product.ID,
		URL:       m.product.URL,
		Timestamp: time.Now().UTC(),
		Price:     details.Price,
		Stock:     details.Stock,
		Available: available,
	}

	select {
	case m.events <- event:
		metrics.MonitorEventsTotal.Inc()
	default:
		log.WithProductID(m.product.ID).Warn().Msg("event receiver lagging, dropping event")
	}
}
