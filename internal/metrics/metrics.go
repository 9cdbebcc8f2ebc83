// Package metrics provides Prometheus instrumentation for the engine.
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
	// TradesOpened counts opened trades, partitioned by direction.
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tyield_trades_opened_total",
		Help: "Total number of trades opened",
	}, []string{"type"})

	// TradesClosed counts closed trades, partitioned by result.
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tyield_trades_closed_total",
		Help: "Total number of trades closed",
	}, []string{"result"})

	// OracleValidationFailures counts rejected oracle reads by reason.
	OracleValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tyield_oracle_validation_failures_total",
		Help: "Oracle price reads rejected, by reason",
	}, []string{"reason"})

	// MultisigApprovals counts signatures collected on pending
	// instructions.
	MultisigApprovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tyield_multisig_approvals_total",
		Help: "Signatures collected on pending multisig instructions",
	})

	// CircuitBreakerTrips counts protocol circuit breaker activations.
	CircuitBreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tyield_circuit_breaker_trips_total",
		Help: "Circuit breaker activations",
	})

	// ExposureLimitRejections counts trades rejected by the exposure
	// limiter.
	ExposureLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tyield_exposure_limit_rejections_total",
		Help: "Trades rejected by exposure limiter",
	})

	// YieldClaimed tracks cumulative yield claimed in quote units.
	YieldClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tyield_yield_claimed_total",
		Help: "Cumulative yield claimed in quote units",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tyield_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tyield_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tyield_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
