package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlshop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlshop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlshop_order_operations_total",
			Help: "Order lifecycle operations by outcome",
		},
		[]string{"operation", "result"},
	)

	notificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlshop_notification_attempts_total",
			Help: "Notification delivery attempts per channel",
		},
		[]string{"channel", "result"},
	)

	stockUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlshop_stock_units_total",
			Help: "Stock units moved, by reason",
		},
		[]string{"reason"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

func RecordOrderOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	orderOperations.WithLabelValues(operation, result).Inc()
}

// RecordNotificationAttempt counts one delivery attempt. result is one of
// "delivered", "failed" or "skipped".
func RecordNotificationAttempt(channel, result string) {
	notificationAttempts.WithLabelValues(channel, result).Inc()
}

func RecordStockMovement(reason string, units int) {
	if units <= 0 {
		return
	}
	stockUnits.WithLabelValues(reason).Add(float64(units))
}
