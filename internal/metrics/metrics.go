// Package metrics exposes worker counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

type Metrics struct {
	registry       *prometheus.Registry
	jobs           *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	renderDuration prometheus.Histogram
	inFlight       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adm_worker",
			Name:      "jobs_total",
			Help:      "Render jobs processed, by final status and failure type.",
		}, []string{"status", "failure_type"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adm_worker",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a job from receipt to reported result.",
			Buckets:   durationBuckets,
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adm_worker",
			Name:      "render_duration_seconds",
			Help:      "Wall time spent in the render call, including parameter checks.",
			Buckets:   durationBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adm_worker",
			Name:      "jobs_in_flight",
			Help:      "Render jobs currently being processed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobs,
		m.jobDuration,
		m.renderDuration,
		m.inFlight,
	)
	return m
}

// JobStarted increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) JobStarted() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) JobFinished(status, failureType string, elapsed time.Duration) {
	m.jobs.WithLabelValues(status, failureType).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RenderFinished(elapsed time.Duration) {
	m.renderDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
