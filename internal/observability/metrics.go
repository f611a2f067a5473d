// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the worker.
type Metrics struct {
	// Processing metrics
	OrdersProcessed    *prometheus.CounterVec
	OrderDuration      prometheus.Histogram
	RetryAttempts      prometheus.Counter
	DeadLettersWritten *prometheus.CounterVec

	// Settlement metrics
	SettlementCalls   *prometheus.CounterVec
	SettlementLatency prometheus.Histogram

	// Circuit breaker metrics
	BreakerTrips      prometheus.Counter
	BreakerRejections prometheus.Counter
	BreakerOpen       prometheus.Gauge

	// Stream metrics
	StreamEntries    *prometheus.CounterVec
	StreamReadErrors prometheus.Counter
	StreamAckErrors  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "order_worker"
	}

	return &Metrics{
		OrdersProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "orders_processed_total",
			Help:      "Total number of orders processed by outcome",
		}, []string{"outcome"}),
		OrderDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "order_duration_seconds",
			Help:      "Time spent processing one order including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RetryAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "retry_attempts_total",
			Help:      "Total number of attempts beyond the first",
		}),
		DeadLettersWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deadletter",
			Name:      "writes_total",
			Help:      "Total number of dead-letter writes by status",
		}, []string{"status"}),

		SettlementCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "calls_total",
			Help:      "Total number of settlement calls by status",
		}, []string{"status"}),
		SettlementLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "call_latency_seconds",
			Help:      "Settlement call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "trips_total",
			Help:      "Total number of CLOSED to OPEN transitions",
		}),
		BreakerRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "rejections_total",
			Help:      "Total number of attempts rejected while open",
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "open",
			Help:      "1 if the circuit breaker is open",
		}),

		StreamEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "entries_total",
			Help:      "Total number of stream entries handled by result",
		}, []string{"result"}),
		StreamReadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "read_errors_total",
			Help:      "Total number of failed group reads",
		}),
		StreamAckErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ack_errors_total",
			Help:      "Total number of failed acknowledgments",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// Order outcome labels.
const (
	OutcomeSubmitted      = "submitted"
	OutcomeFailed         = "failed"
	OutcomeAlreadyHandled = "already_handled"
	OutcomeInterrupted    = "interrupted"
)

// RecordOrderProcessed records the final outcome and duration of one order.
func RecordOrderProcessed(outcome string, seconds float64) {
	DefaultMetrics.OrdersProcessed.WithLabelValues(outcome).Inc()
	DefaultMetrics.OrderDuration.Observe(seconds)
}

// RecordRetry increments the retry counter.
func RecordRetry() {
	DefaultMetrics.RetryAttempts.Inc()
}

// RecordDeadLetter records a dead-letter write attempt.
func RecordDeadLetter(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.DeadLettersWritten.WithLabelValues(status).Inc()
}

// RecordSettlementCall records one settlement call.
func RecordSettlementCall(seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.SettlementCalls.WithLabelValues(status).Inc()
	DefaultMetrics.SettlementLatency.Observe(seconds)
}

// RecordBreakerTrip records the breaker opening.
func RecordBreakerTrip() {
	DefaultMetrics.BreakerTrips.Inc()
	DefaultMetrics.BreakerOpen.Set(1)
}

// RecordBreakerClosed records the breaker closing.
func RecordBreakerClosed() {
	DefaultMetrics.BreakerOpen.Set(0)
}

// RecordBreakerRejection records an attempt rejected by an open breaker.
func RecordBreakerRejection() {
	DefaultMetrics.BreakerRejections.Inc()
}

// RecordStreamEntry records how a stream entry was handled.
func RecordStreamEntry(result string) {
	DefaultMetrics.StreamEntries.WithLabelValues(result).Inc()
}

// RecordStreamReadError increments the read error counter.
func RecordStreamReadError() {
	DefaultMetrics.StreamReadErrors.Inc()
}

// RecordStreamAckError increments the ack error counter.
func RecordStreamAckError() {
	DefaultMetrics.StreamAckErrors.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
