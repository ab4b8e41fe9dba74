package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	historyEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "internment_history_entries_total",
			Help: "Total number of history entries appended to internment records",
		},
		[]string{"kind"},
	)

	reviewStatusPatients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "internment_review_status_patients",
			Help: "Admitted patients per criticality tier and review status at the last rollup",
		},
		[]string{"criticality", "status"},
	)
)

// Handler serves the Prometheus exposition format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Middleware records request counts and latency by route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordHistoryEntries counts appended history entries of one kind.
func RecordHistoryEntries(kind string, n int) {
	if n <= 0 {
		return
	}
	historyEntriesTotal.WithLabelValues(kind).Add(float64(n))
}

// SetReviewStatus publishes the size of one tier/status bucket.
func SetReviewStatus(criticality, status string, n int) {
	reviewStatusPatients.WithLabelValues(criticality, status).Set(float64(n))
}
