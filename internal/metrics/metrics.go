// Package metrics provides Prometheus instrumentation for the share
// exchange.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts submitted orders by side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equityledger_orders_total",
		Help: "Orders submitted, by side and outcome",
	}, []string{"side", "outcome"})

	// TradesTotal counts executed trades, split into primary and secondary.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equityledger_trades_total",
		Help: "Trades executed",
	}, []string{"market"})

	// SharesTraded counts shares changing hands.
	SharesTraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equityledger_shares_traded_total",
		Help: "Shares transferred by trades",
	}, []string{"market"})

	// MatchLatency tracks the time spent holding a property lock for a match.
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "equityledger_match_latency_seconds",
		Help:    "Order matching latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// LockConflicts counts property lock acquisitions that timed out.
	LockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "equityledger_lock_conflicts_total",
		Help: "Property lock acquisitions that timed out",
	})

	// HaltedProperties tracks properties with trading halted.
	HaltedProperties = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equityledger_halted_properties",
		Help: "Properties with trading halted by a ledger invariant violation",
	})

	// WebhookDeliveries counts webhook delivery attempts by result.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equityledger_webhook_deliveries_total",
		Help: "Webhook delivery attempts",
	}, []string{"event", "result"})

	// StreamClients tracks connected WebSocket clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equityledger_stream_clients",
		Help: "Connected WebSocket trade feed clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equityledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equityledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Market labels for trade metrics.
const (
	MarketPrimary   = "primary"
	MarketSecondary = "secondary"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, route(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route(r)).Observe(duration)
	})
}

// route returns the chi route pattern to keep label cardinality bounded.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack supports WebSocket upgrades through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
