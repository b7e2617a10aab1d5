// Package metrics exposes Spine's Prometheus instrumentation: job
// lifecycle counters, reaper sweep counters, and HTTP request
// duration, registered against a dedicated registry so tests can
// create isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector Spine registers.
type Metrics struct {
	registry *prometheus.Registry

	JobsCreated   prometheus.Counter
	JobsClaimed   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsReleased  prometheus.Counter

	ReaperSweeps  prometheus.Counter
	ReaperExpired prometheus.Counter
	ReaperDead    prometheus.Counter
	ReaperErrors  prometheus.Counter

	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds and registers Spine's collectors against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_jobs_created_total",
			Help: "Total jobs created by the head.",
		}),
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_jobs_claimed_total",
			Help: "Total successful claims.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_jobs_completed_total",
			Help: "Total jobs marked done.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_jobs_failed_total",
			Help: "Total fail() calls, requeued or terminal.",
		}),
		JobsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_jobs_released_total",
			Help: "Total voluntary releases.",
		}),
		ReaperSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_reaper_sweeps_total",
			Help: "Total reaper sweep passes.",
		}),
		ReaperExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_reaper_expired_total",
			Help: "Total jobs returned to queued by the reaper.",
		}),
		ReaperDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_reaper_dead_total",
			Help: "Total jobs marked dead by the reaper.",
		}),
		ReaperErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spine_reaper_errors_total",
			Help: "Total per-record errors encountered during reaper sweeps.",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "spine_http_request_duration_seconds",
			Help: "HTTP request duration by route and status.",
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.JobsCreated, m.JobsClaimed, m.JobsCompleted, m.JobsFailed, m.JobsReleased,
		m.ReaperSweeps, m.ReaperExpired, m.ReaperDead, m.ReaperErrors,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request's duration.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}
