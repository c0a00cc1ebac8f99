package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "CopyFabric/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetricsInst *httpMetrics
)

func sharedHTTPMetrics() *httpMetrics {
	httpMetricsOnce.Do(func() {
		labels := []string{"route", "method", "class"}
		httpMetricsInst = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "copyfabric_http_requests_total",
				Help: "HTTP requests by route, method and status",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "copyfabric_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}, labels),
			inFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "copyfabric_http_in_flight_requests",
				Help: "HTTP requests being served, websocket streams included",
			}, []string{"route"}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "copyfabric_http_response_size_bytes",
				Help:    "HTTP response body size",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8),
			}, labels),
		}
	})
	return httpMetricsInst
}

// Metrics records per-route request metrics and logs 5xx responses and
// requests slower than slowThreshold. Routes are labelled by template, see
// WithRoute.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	m := sharedHTTPMetrics()
	if l == nil {
		l = applogger.Nop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeLabel(r)
			gauge := m.inFlight.WithLabelValues(route)
			gauge.Inc()
			defer gauge.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			took := time.Since(start)

			class := statusClass(rw.status)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
			if rw.hijacked {
				return
			}
			m.duration.WithLabelValues(route, r.Method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, r.Method, class).Observe(float64(rw.written))

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", r.Method),
				applogger.Int("status", rw.status),
				applogger.Duration("duration_ms", took),
			}
			switch {
			case rw.status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && took >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status   int
	written  int
	hijacked bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Hijack passes websocket upgrades through. A hijacked request is counted
// but kept out of the latency and size histograms.
func (w *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(w.ResponseWriter).Hijack()
	if err == nil {
		w.hijacked = true
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type routeKey struct{}

// WithRoute stores the route template used as the metrics label.
func WithRoute(r *http.Request, route string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), routeKey{}, route))
}

func routeLabel(r *http.Request) string {
	if s, ok := r.Context().Value(routeKey{}).(string); ok && s != "" {
		return s
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
