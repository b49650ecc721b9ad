package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
)

func TestInterpretAvailability(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		available bool
	}{
		{"in stock page", 200, "<html>Add to cart</html>", true},
		{"out of stock", 200, "<html>Out of Stock</html>", false},
		{"sold out", 200, "currently SOLD OUT!", false},
		{"unavailable", 200, "This item is unavailable", false},
		{"not available", 200, "not available in your region", false},
		{"temporarily unavailable", 200, "Temporarily Unavailable", false},
		{"not found", 404, "Add to cart", false},
		{"server error", 500, "", false},
		{"empty 200", 200, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.available, interpretAvailability(tt.status, []byte(tt.body)))
		})
	}
}

func testClient(t *testing.T) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New("")
	require.NoError(t, err)
	c.WithRetryConfig(httpclient.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0})
	return c
}

func fastProduct(url string) Product {
	return Product{
		ID:           "prod-1",
		URL:          url,
		Name:         "Widget",
		PollInterval: 10 * time.Millisecond,
		Timeout:      2 * time.Second,
		MaxRetries:   1,
	}
}

func collectEvents(ch <-chan Event, n int, timeout time.Duration) []Event {
	var events []Event
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
	return events
}

func TestEmitsOnTransitionsOnly(t *testing.T) {
	// unavailable, unavailable, available, available, unavailable
	bodies := []string{"sold out", "sold out", "in stock", "in stock", "sold out"}
	var call atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(call.Add(1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		_, _ = w.Write([]byte(bodies[i]))
	}))
	defer ts.Close()

	engine := NewEngine()
	engine.Start()
	defer engine.Stop()

	m := NewMonitor(fastProduct(ts.URL), testClient(t), nil)
	events := engine.Add(m)

	got := collectEvents(events, 2, 3*time.Second)
	require.Len(t, got, 2)
	assert.True(t, got[0].Available)
	assert.False(t, got[1].Available)
	assert.Equal(t, "prod-1", got[0].ProductID)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp) || got[0].Timestamp.Equal(got[1].Timestamp))
}

func TestFirstObservationAvailableEmits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price": 9.5, "stock": 3}`))
	}))
	defer ts.Close()

	engine := NewEngine()
	engine.Start()
	defer engine.Stop()

	m := NewMonitor(fastProduct(ts.URL), testClient(t), nil)
	events := engine.Add(m)

	got := collectEvents(events, 1, 2*time.Second)
	require.Len(t, got, 1)
	assert.True(t, got[0].Available)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 9.5, *got[0].Price)
	require.NotNil(t, got[0].Stock)
	assert.Equal(t, 3, *got[0].Stock)
}

func TestFirstObservationUnavailableStaysSilent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sold out"))
	}))
	defer ts.Close()

	engine := NewEngine()
	engine.Start()
	defer engine.Stop()

	m := NewMonitor(fastProduct(ts.URL), testClient(t), nil)
	events := engine.Add(m)

	got := collectEvents(events, 1, 200*time.Millisecond)
	assert.Empty(t, got)
}

func TestCheckRetriesTransportErrors(t *testing.T) {
	var call atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if call.Add(1) == 1 {
			hj, _ := w.(http.Hijacker)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		_, _ = w.Write([]byte("in stock"))
	}))
	defer ts.Close()

	m := NewMonitor(fastProduct(ts.URL), testClient(t), nil)
	m.retryBase = time.Millisecond

	available, _, err := m.check(context.Background())
	require.NoError(t, err)
	assert.True(t, available)
	assert.Equal(t, int32(2), call.Load())
}

func TestCheckExhaustedRetriesSurfacesError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	m := NewMonitor(fastProduct(url), testClient(t), nil)
	m.retryBase = time.Millisecond

	_, _, err := m.check(context.Background())
	assert.Error(t, err)
}

func TestStatsTrackCheckDurations(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("in stock"))
	}))
	defer ts.Close()

	m := NewMonitor(fastProduct(ts.URL), testClient(t), nil)
	assert.Equal(t, Stats{}, m.Stats())
	assert.Equal(t, time.Duration(0), m.Stats().Mean())

	for i := 0; i < 3; i++ {
		_, _, err := m.check(context.Background())
		require.NoError(t, err)
	}

	stats := m.Stats()
	assert.Equal(t, int64(3), stats.Checks)
	assert.Greater(t, stats.Total, time.Duration(0))
	assert.LessOrEqual(t, stats.Min, stats.Max)
	assert.LessOrEqual(t, stats.Mean(), stats.Max)
	assert.GreaterOrEqual(t, stats.Mean(), stats.Min)
}

func TestAddWithoutStartDoesNotPoll(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("in stock"))
	}))
	defer ts.Close()

	engine := NewEngine()
	engine.Add(NewMonitor(fastProduct(ts.URL), testClient(t), nil))

	// The loop observes the stopped engine and exits before any request.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestEngineStopHaltsLoops(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("in stock"))
	}))
	defer ts.Close()

	engine := NewEngine()
	engine.Start()
	engine.Add(NewMonitor(fastProduct(ts.URL), testClient(t), nil))
	require.Equal(t, 1, engine.Size())

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}
}
