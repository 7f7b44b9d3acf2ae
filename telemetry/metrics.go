package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AuditEntriesWritten prometheus.Counter
	MessagesPublished   *prometheus.CounterVec
	MessagesConsumed    *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of in-flight HTTP requests",
		}),
		AuditEntriesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_written_total",
			Help: "Total audit entries written",
		}),
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_published_total",
				Help: "Total messages published",
			},
			[]string{"broker", "status"},
		),
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_consumed_total",
				Help: "Total messages consumed",
			},
			[]string{"status"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "job_runs_total",
				Help: "Total recurring job runs",
			},
			[]string{"job", "status"},
		),
	}

	m.Registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AuditEntriesWritten,
		m.MessagesPublished,
		m.MessagesConsumed,
		m.JobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// StatusLabel maps an error to the status label used by the counters
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
