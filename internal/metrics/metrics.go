// Package metrics exposes the server's Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intelboard"

// Metrics holds the collectors. Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	storeWrites      *prometheus.CounterVec
	workflowRequests *prometheus.CounterVec
	reportExports    *prometheus.CounterVec
	inboxReports     prometheus.Counter
	sessionsActive   prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Committed document store writes by collection and operation.",
		}, []string{"collection", "op"}),
		workflowRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_requests_total",
			Help:      "Workflow control requests by action and result.",
		}, []string{"action", "result"}),
		reportExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_exports_total",
			Help:      "PDF report exports by result.",
		}, []string{"result"}),
		inboxReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_reports_total",
			Help:      "Reports written from inbox files.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open operator sessions.",
		}),
	}
	m.registry.MustRegister(
		m.storeWrites,
		m.workflowRequests,
		m.reportExports,
		m.inboxReports,
		m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// StoreWrite counts a committed store write.
func (m *Metrics) StoreWrite(collection, op string) {
	m.storeWrites.WithLabelValues(collection, op).Inc()
}

// WorkflowRequest counts a workflow action outcome.
func (m *Metrics) WorkflowRequest(action, result string) {
	m.workflowRequests.WithLabelValues(action, result).Inc()
}

// ReportExport counts an export outcome.
func (m *Metrics) ReportExport(result string) {
	m.reportExports.WithLabelValues(result).Inc()
}

// InboxReport counts a report written from the inbox.
func (m *Metrics) InboxReport(string) {
	m.inboxReports.Inc()
}

// SessionsActive sets the open-session gauge.
func (m *Metrics) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
