package proxy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
)

// Pool selects proxies round-robin over its healthy members. Pool membership
// is immutable after construction; only the health bits mutate.
type Pool struct {
	endpoints []Endpoint
	cursor    atomic.Uint64

	mu     sync.RWMutex
	health map[string]bool
}

// NewPool creates a pool from an in-memory endpoint list. All members
// start healthy.
func NewPool(endpoints []Endpoint) *Pool {
	health := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		health[ep.ID()] = true
	}

	return &Pool{
		endpoints: endpoints,
		health:    health,
	}
}

// FromFile creates a pool from a line-oriented proxies file. Blank lines and
// lines starting with # are ignored; malformed lines are logged and skipped.
func FromFile(path string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	endpoints, err := parseEndpoints(f)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no valid proxies found in %s", path)
	}

	log.WithComponent("proxy").Info().
		Int("count", len(endpoints)).
		Str("path", path).
		Msg("loaded proxies")

	return NewPool(endpoints), nil
}

func parseEndpoints(r io.Reader) ([]Endpoint, error) {
	var endpoints []Endpoint
	logger := log.WithComponent("proxy")

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ep, err := ParseLine(line)
		if err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("skipping malformed proxy line")
			continue
		}
		endpoints = append(endpoints, ep)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	return endpoints, nil
}

// Next returns the next healthy proxy in round-robin order, or false when no
// healthy proxy exists. The cursor advances once per scanned candidate, so
// unhealthy members are passed over without disturbing the rotation: with one
// member down, successive calls keep alternating over the rest.
func (p *Pool) Next() (Endpoint, bool) {
	if len(p.endpoints) == 0 {
		return Endpoint{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := 0; i < len(p.endpoints); i++ {
		idx := p.cursor.Add(1) - 1
		ep := p.endpoints[idx%uint64(len(p.endpoints))]
		if p.health[ep.ID()] {
			return ep, true
		}
	}

	return Endpoint{}, false
}

// SetHealth flips the health bit for the given endpoint.
func (p *Pool) SetHealth(ep Endpoint, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.health[ep.ID()]; !known {
		return
	}
	p.health[ep.ID()] = healthy
}

// IsHealthy reports the health bit for the given endpoint.
func (p *Pool) IsHealthy(ep Endpoint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health[ep.ID()]
}

// Healthy returns all endpoints whose health bit is true, in pool order.
func (p *Pool) Healthy() []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var healthy []Endpoint
	for _, ep := range p.endpoints {
		if p.health[ep.ID()] {
			healthy = append(healthy, ep)
		}
	}
	return healthy
}

// Unhealthy returns all endpoints whose health bit is false, in pool order.
func (p *Pool) Unhealthy() []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unhealthy []Endpoint
	for _, ep := range p.endpoints {
		if !p.health[ep.ID()] {
			unhealthy = append(unhealthy, ep)
		}
	}
	return unhealthy
}

// ResetAllHealthy marks every member healthy again.
func (p *Pool) ResetAllHealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		p.health[ep.ID()] = true
	}
}

// All returns the full membership regardless of health.
func (p *Pool) All() []Endpoint {
	return p.endpoints
}

// Size returns the total number of members.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// HealthyCount returns the number of members whose health bit is true.
func (p *Pool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, healthy := range p.health {
		if healthy {
			count++
		}
	}
	return count
}
