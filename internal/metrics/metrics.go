// Package metrics exposes Prometheus metrics for the ingestion engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's instrumentation on its own registry, so
// tests can create isolated instances.
type Metrics struct {
	reg *prometheus.Registry

	// TasksProcessed counts workflow tasks by type and outcome.
	TasksProcessed *prometheus.CounterVec
	// QueueDepth is the current length of the workflow task queue.
	QueueDepth prometheus.Gauge
	// ProductErrors counts failed product downloads and failed
	// registration script runs.
	ProductErrors prometheus.Counter
	// DARsSubmitted counts DAR submissions by status.
	DARsSubmitted *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		TasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eoingest_tasks_processed_total",
				Help: "Workflow tasks processed, by task type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eoingest_queue_depth",
				Help: "Tasks currently waiting in the workflow queue.",
			},
		),
		ProductErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eoingest_product_errors_total",
				Help: "Product downloads or registration scripts that failed.",
			},
		),
		DARsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eoingest_dars_submitted_total",
				Help: "Data Access Requests submitted to the Download Manager.",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(m.TasksProcessed, m.QueueDepth, m.ProductErrors, m.DARsSubmitted)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
