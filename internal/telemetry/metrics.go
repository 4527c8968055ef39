// Package telemetry provides application-level observability for the portal.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<KAP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is NOT served by the Gin router, keeping the
// scrape path off the public ingress and outside rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/requests/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as request identifiers.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Request lifecycle metrics.
//
// RequestDecisionsTotal counts committed lifecycle transitions by kind
// (topic/acl) and decision (approved/rejected/cancelled). Submissions are
// counted separately by RequestSubmissionsTotal.
//
// Example PromQL queries:
//   - Approval rate:     sum(rate(request_decisions_total{decision="approved"}[1d]))
//   - Pending backlog trend: request_submissions_total - sum(request_decisions_total)
var (
	RequestSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_submissions_total",
			Help: "Total number of resource requests submitted, by kind.",
		},
		[]string{"kind"},
	)

	RequestDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_decisions_total",
			Help: "Total number of committed request transitions, by kind and decision.",
		},
		[]string{"kind", "decision"},
	)
)

// Provisioning metrics — labelled by operation (create_topic/create_acl) and
// the structured outcome code reported by the Kafka admin client.
//
// Example PromQL queries:
//   - Soft-failure share: sum(rate(provision_outcomes_total{outcome="already_exists"}[1h]))
//   - Broker availability problems: rate(provision_outcomes_total{outcome="unavailable"}[5m])
var (
	ProvisionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_outcomes_total",
			Help: "Total number of provisioning attempts against the broker cluster, by operation and outcome code.",
		},
		[]string{"operation", "outcome"},
	)

	ProvisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_duration_seconds",
			Help:    "Histogram of broker admin call latencies, by operation.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

// Login metrics — labelled by result (success/invalid_credentials/directory_error).
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections tracks the connection pool size, polled every 30 s by
// StartDBStatsCollector rather than per-request to avoid the overhead of
// sql.DB.Stats() on the hot path.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
