package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP client metrics
	RequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_requests_total",
			Help: "Total number of HTTP request attempts",
		},
	)

	RequestsSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_requests_success_total",
			Help: "Total number of HTTP request attempts that returned a response",
		},
	)

	RequestsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_requests_failed_total",
			Help: "Total number of HTTP request attempts that failed at the transport layer",
		},
	)

	// Monitor metrics
	MonitorChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazabot_monitor_checks_total",
			Help: "Total number of product availability checks by outcome",
		},
		[]string{"outcome"},
	)

	MonitorEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_monitor_events_total",
			Help: "Total number of availability transition events emitted",
		},
	)

	MonitorsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_monitors_active",
			Help: "Number of product monitors currently polling",
		},
	)

	// Checkout metrics
	CheckoutAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_checkout_attempts_total",
			Help: "Total number of checkout flows started",
		},
	)

	CheckoutResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazabot_checkout_results_total",
			Help: "Total number of checkout flows finished by result",
		},
		[]string{"result"},
	)

	CheckoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lazabot_checkout_duration_seconds",
			Help:    "End-to-end checkout flow duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Captcha metrics
	CaptchaSolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazabot_captcha_solves_total",
			Help: "Total number of captcha solve attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Executor metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazabot_tasks_total",
			Help: "Number of executor tasks by status",
		},
		[]string{"status"},
	)

	TasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_tasks_submitted_total",
			Help: "Total number of tasks accepted by the executor",
		},
	)

	TasksRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lazabot_tasks_rejected_total",
			Help: "Total number of task submissions rejected at capacity",
		},
	)

	// Proxy metrics
	ProxiesHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_proxies_healthy",
			Help: "Number of proxies currently marked healthy",
		},
	)

	ProxiesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_proxies_total",
			Help: "Total number of proxies in the pool",
		},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazabot_sessions_active",
			Help: "Number of persisted sessions on disk",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestsSuccessTotal)
	prometheus.MustRegister(RequestsFailedTotal)
	prometheus.MustRegister(MonitorChecksTotal)
	prometheus.MustRegister(MonitorEventsTotal)
	prometheus.MustRegister(MonitorsActive)
	prometheus.MustRegister(CheckoutAttemptsTotal)
	prometheus.MustRegister(CheckoutResultsTotal)
	prometheus.MustRegister(CheckoutDuration)
	prometheus.MustRegister(CaptchaSolvesTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksRejected)
	prometheus.MustRegister(ProxiesHealthy)
	prometheus.MustRegister(ProxiesTotal)
	prometheus.MustRegister(SessionsActive)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
