package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runInFlight   prometheus.Gauge
	embeddedTotal *prometheus.CounterVec
	remaining     *prometheus.GaugeVec
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "backfill_runs_total",
			Help:      "Total backfill runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "backfill_duration_seconds",
			Help:      "Backfill run duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "backfill_in_flight",
			Help:      "Number of in-flight backfill runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	embeddedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "embeddings_total",
			Help:      "Embeddings handled by the worker by outcome.",
		},
		[]string{"service", "outcome"},
	)
	remaining := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "embeddings_remaining",
			Help:      "Messages still lacking an embedding after the last run.",
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between a backfill request and its processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, embeddedTotal, remaining, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		runTotal:      runTotal,
		runDuration:   runDuration,
		runInFlight:   runInFlight,
		embeddedTotal: embeddedTotal,
		remaining:     remaining,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBackfill() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishBackfill(service string, duration time.Duration, report domain.BackfillReport, err error) {
	m.runInFlight.Dec()

	status := "success"
	switch {
	case domain.IsKind(err, domain.ErrConflict):
		status = "skipped"
	case err != nil:
		status = "error"
	}

	m.runTotal.WithLabelValues(service, status).Inc()
	m.runDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.embeddedTotal.WithLabelValues(service, "processed").Add(float64(report.Processed))
	m.embeddedTotal.WithLabelValues(service, "failed").Add(float64(report.Failed))
	m.remaining.WithLabelValues(service).Set(float64(report.Remaining))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
