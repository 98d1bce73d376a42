// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service's collectors. A single instance is created at
// startup and shared by the middleware, handlers, and jobs.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ReportsGenerated    *prometheus.CounterVec
	SnapshotsSaved      prometheus.Counter
}

// New registers the collectors on the default registry, which /metrics
// serves.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg. Tests use a fresh registry per
// instance to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_http_requests_total",
			Help: "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insight_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ReportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_reports_generated_total",
			Help: "Reports generated by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SnapshotsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_snapshots_saved_total",
			Help: "Summary snapshots persisted by the background job.",
		}),
	}
}
