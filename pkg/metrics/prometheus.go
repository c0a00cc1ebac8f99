package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	signalsTotal *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyfabric_jobs_total",
				Help: "Trade jobs executed by action and outcome",
			},
			[]string{"action", "status"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copyfabric_job_duration_seconds",
				Help:    "Time spent executing a trade job under the terminal lock",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"action"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyfabric_signals_total",
				Help: "Ingested signals by outcome",
			},
			[]string{"outcome"},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "copyfabric_queue_depth",
				Help: "Trade jobs waiting for a worker",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyfabric_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copyfabric_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordJob(action, status string, seconds float64) {
	r.jobsTotal.WithLabelValues(action, status).Inc()
	r.jobDuration.WithLabelValues(action).Observe(seconds)
}

func (r *Recorder) RecordSignal(outcome string) {
	r.signalsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
