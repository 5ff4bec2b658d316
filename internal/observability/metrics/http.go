package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchResults       *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	searchEmptyTotal    *prometheus.CounterVec
	backfillEmbeddings  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful searches by answering strategy.",
		},
		[]string{"service", "endpoint", "strategy"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of matched emails per successful search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	searchEmptyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "empty_total",
			Help:      "Total searches that matched nothing.",
		},
		[]string{"service", "endpoint"},
	)
	backfillEmbeddings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embeddings",
			Name:      "backfilled_total",
			Help:      "Embeddings generated on request by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchResults,
		searchDuration,
		searchEmptyTotal,
		backfillEmbeddings,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchResults:       searchResults,
		searchDuration:      searchDuration,
		searchEmptyTotal:    searchEmptyTotal,
		backfillEmbeddings:  backfillEmbeddings,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds id segments so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/emails/") && strings.HasSuffix(path, "/bucket"):
		return "/v1/emails/{email_id}/bucket"
	case strings.HasPrefix(path, "/v1/emails/") && strings.HasSuffix(path, "/embedding"):
		return "/v1/emails/{email_id}/embedding"
	case strings.HasPrefix(path, "/v1/emails/"):
		return "/v1/emails/{email_id}"
	case strings.HasPrefix(path, "/v1/buckets/"):
		return "/v1/buckets/{bucket_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint, strategy string, results int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, endpoint, strategy).Inc()
	m.searchResults.WithLabelValues(service, endpoint).Observe(float64(results))
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if results == 0 {
		m.searchEmptyTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordBackfill(service string, processed, failed int) {
	if processed > 0 {
		m.backfillEmbeddings.WithLabelValues(service, "processed").Add(float64(processed))
	}
	if failed > 0 {
		m.backfillEmbeddings.WithLabelValues(service, "failed").Add(float64(failed))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
