// Package metrics holds the Prometheus collectors for the risk server.
// Collectors live on a private registry so that each server (and each test)
// owns its own set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imwg"

// Metrics groups every collector exported by the server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Assessment lifecycle
	AssessmentOperations *prometheus.CounterVec
	Calculations         *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec

	// Audit trail
	AuditWrites   *prometheus.CounterVec
	AuditFailures *prometheus.CounterVec

	// Cache
	CacheLookups *prometheus.CounterVec

	// MCP tools
	ToolInvocations *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),

		AssessmentOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessments",
			Name:      "operations_total",
			Help:      "Assessment operations by name and outcome",
		}, []string{"operation", "outcome"}),

		Calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessments",
			Name:      "calculations_total",
			Help:      "Completed risk calculations by verdict",
		}, []string{"risk_result"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessments",
			Name:      "validation_failures_total",
			Help:      "Rejected submissions by operation",
		}, []string{"operation"}),

		AuditWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "History entries written by action",
		}, []string{"action"}),

		AuditFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "History entries that could not be written, by action",
		}, []string{"action"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Assessment cache lookups by result (hit, miss)",
		}, []string{"result"}),

		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_invocations_total",
			Help:      "MCP tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome labels a finished operation.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
