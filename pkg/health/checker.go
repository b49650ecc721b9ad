// Package health probes proxy pool members against an IP-echo endpoint and
// feeds the results back into the pool's health bits.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

// ScanMode selects which pool members a scan probes.
type ScanMode int

const (
	// ScanAll probes every member.
	ScanAll ScanMode = iota
	// ScanHealthyOnly re-checks members currently presumed healthy.
	ScanHealthyOnly
	// ScanUnhealthyOnly probes failed members for recovery.
	ScanUnhealthyOnly
)

const defaultCheckTimeout = 10 * time.Second

// DefaultTestURL is a public IP-echo endpoint used to verify proxy reachability.
const DefaultTestURL = "https://httpbin.org/ip"

// Report summarizes one scan over the pool.
type Report struct {
	Total     int
	Healthy   int
	Unhealthy int

	HealthyProxies   []proxy.Endpoint
	UnhealthyProxies []proxy.Endpoint

	Duration time.Duration
}

// Checker probes pool members through themselves and updates their health bits.
type Checker struct {
	pool    *proxy.Pool
	client  *httpclient.Client
	testURL string
	timeout time.Duration
}

// NewChecker creates a checker probing against DefaultTestURL with the
// default 10s timeout.
func NewChecker(pool *proxy.Pool) (*Checker, error) {
	client, err := httpclient.New("")
	if err != nil {
		return nil, err
	}
	// A probe either answers in time or it doesn't; retrying hides flapping.
	client.WithRetryConfig(httpclient.RetryConfig{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1.0})

	return &Checker{
		pool:    pool,
		client:  client,
		testURL: DefaultTestURL,
		timeout: defaultCheckTimeout,
	}, nil
}

// WithTestURL overrides the probe target.
func (c *Checker) WithTestURL(url string) *Checker {
	c.testURL = url
	return c
}

// WithTimeout overrides the per-probe timeout.
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	c.timeout = d
	return c
}

// Scan probes the selected members concurrently, updates the pool's health
// bits in place, and returns a report of the outcome.
func (c *Checker) Scan(ctx context.Context, mode ScanMode) Report {
	start := time.Now()
	targets := c.targets(mode)
	logger := log.WithComponent("health")

	results := make([]bool, len(targets))
	var wg sync.WaitGroup
	for i, ep := range targets {
		wg.Add(1)
		go func(i int, ep proxy.Endpoint) {
			defer wg.Done()
			results[i] = c.probe(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	report := Report{Total: len(targets)}
	for i, ep := range targets {
		c.pool.SetHealth(ep, results[i])
		if results[i] {
			report.Healthy++
			report.HealthyProxies = append(report.HealthyProxies, ep)
		} else {
			report.Unhealthy++
			report.UnhealthyProxies = append(report.UnhealthyProxies, ep)
		}
	}
	report.Duration = time.Since(start)

	metrics.ProxiesTotal.Set(float64(c.pool.Size()))
	metrics.ProxiesHealthy.Set(float64(c.pool.HealthyCount()))

	logger.Info().
		Int("total", report.Total).
		Int("healthy", report.Healthy).
		Int("unhealthy", report.Unhealthy).
		Dur("duration", report.Duration).
		Msg("proxy scan complete")

	return report
}

func (c *Checker) targets(mode ScanMode) []proxy.Endpoint {
	switch mode {
	case ScanHealthyOnly:
		return c.pool.Healthy()
	case ScanUnhealthyOnly:
		return c.pool.Unhealthy()
	default:
		return c.pool.All()
	}
}

func (c *Checker) probe(ctx context.Context, ep proxy.Endpoint) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Do(ctx, http.MethodGet, c.testURL, nil, nil, &ep)
	if err != nil {
		log.WithComponent("health").Debug().
			Str("proxy", ep.ID()).
			Err(err).
			Msg("proxy probe failed")
		return false
	}
	return resp.IsSuccess()
}
