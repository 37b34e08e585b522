package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roster",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roster",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	playerCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "players",
			Name:      "commands_total",
			Help:      "Total number of dispatched player commands.",
		},
		[]string{"action", "result"},
	)

	rosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roster",
			Subsystem: "players",
			Name:      "records",
			Help:      "Number of player records in the roster.",
		},
	)

	walletAccountChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "wallet",
			Name:      "account_changes_total",
			Help:      "Total number of account change notifications applied.",
		},
	)

	walletBalanceRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "wallet",
			Name:      "balance_refreshes_total",
			Help:      "Total number of wallet balance refreshes.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		playerCommands,
		rosterSize,
		walletAccountChanges,
		walletBalanceRefreshes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight and DecInFlight track requests currently being served.
func IncInFlight() { httpInFlight.Inc() }

func DecInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records a finished request. path should be a route
// template so label cardinality stays bounded.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPlayerCommand counts a dispatched command by action and outcome.
func RecordPlayerCommand(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	playerCommands.WithLabelValues(action, result).Inc()
}

// SetRosterSize publishes the current record count.
func SetRosterSize(n int) {
	rosterSize.Set(float64(n))
}

// RecordWalletAccountChange counts an applied account change notification.
func RecordWalletAccountChange() {
	walletAccountChanges.Inc()
}

// RecordBalanceRefresh counts a balance refresh attempt.
func RecordBalanceRefresh(success bool) {
	result := "false"
	if success {
		result = "true"
	}
	walletBalanceRefreshes.WithLabelValues(result).Inc()
}
