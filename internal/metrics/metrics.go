package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons for submissions that never became jobs
const (
	ReasonInvalidURL     = "invalid_url"
	ReasonDownloadFailed = "download_failed"
	ReasonNotAnImage     = "not_an_image"
	ReasonInternal       = "internal"
)

// Metrics holds the face-swap job collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	submitted          prometheus.Counter
	rejected           *prometheus.CounterVec
	finished           *prometheus.CounterVec
	inFlight           prometheus.Gauge
	processingDuration prometheus.Histogram
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceswap_jobs_submitted_total",
			Help: "Jobs accepted for processing",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceswap_jobs_rejected_total",
			Help: "Submissions rejected before a job was created",
		}, []string{"reason"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceswap_jobs_finished_total",
			Help: "Jobs that reached a terminal state",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faceswap_jobs_in_flight",
			Help: "Jobs currently in the processing state",
		}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceswap_processing_duration_seconds",
			Help:    "Wall-clock duration of the face composition step",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.submitted,
		m.rejected,
		m.finished,
		m.inFlight,
		m.processingDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// JobSubmitted counts an accepted job
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

// JobRejected counts a submission rejected with the given reason
func (m *Metrics) JobRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// JobStarted marks a job as entering processing
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// JobFinished records the terminal status and the composition duration
func (m *Metrics) JobFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.finished.WithLabelValues(status).Inc()
	m.processingDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
