package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every endpoint.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Ledger domain metrics.
var (
	loansCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lending_loans_created_total",
		Help: "Loans originated since process start.",
	})

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_payments_total",
			Help: "Payment attempts by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	paymentConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lending_payment_conflicts_total",
		Help: "Payments that exhausted their optimistic-concurrency retries.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loansCreatedTotal, paymentsTotal, paymentConflictsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// LoanCreated counts one successful origination.
func LoanCreated() { loansCreatedTotal.Inc() }

// PaymentObserved counts one payment attempt.
func PaymentObserved(paymentType, outcome string) {
	paymentsTotal.WithLabelValues(paymentType, outcome).Inc()
}

// PaymentConflict counts a payment that lost its concurrency race for good.
func PaymentConflict() { paymentConflictsTotal.Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		path := CanonicalPath(r.URL.Path)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
