package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoice_intake"

// Metrics owns the Prometheus registry of the service
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	decisionsTotal     *prometheus.CounterVec
	checkFailuresTotal *prometheus.CounterVec
	documentTypesTotal *prometheus.CounterVec
	recordsTotal       *prometheus.CounterVec
	watchedFilesTotal  *prometheus.CounterVec
}

// New creates the metrics and registers them on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "decisions_total",
				Help:      "Total approval decisions by outcome.",
			},
			[]string{"outcome"},
		),
		checkFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "check_failures_total",
				Help:      "Total enforced checks that failed, by check.",
			},
			[]string{"check"},
		),
		documentTypesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "document_types_total",
				Help:      "Total classified documents by type.",
			},
			[]string{"type"},
		),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "approvals",
				Name:      "records_total",
				Help:      "Total approval record transitions by resulting status.",
			},
			[]string{"status"},
		),
		watchedFilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "files_total",
				Help:      "Total files picked up by the folder watcher by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.decisionsTotal,
		m.checkFailuresTotal,
		m.documentTypesTotal,
		m.recordsTotal,
		m.watchedFilesTotal,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency labelled by route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordDecision counts one evaluator outcome
func (m *Metrics) RecordDecision(d rules.Decision) {
	outcome := "review"
	if d.Approved {
		outcome = "approved"
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()

	for _, check := range d.FailedChecks() {
		m.checkFailuresTotal.WithLabelValues(check).Inc()
	}

	docType := string(d.DocumentType())
	if docType == "" {
		docType = "unknown"
	}
	m.documentTypesTotal.WithLabelValues(docType).Inc()
}

// RecordStatus counts an approval record reaching status
func (m *Metrics) RecordStatus(status string) {
	m.recordsTotal.WithLabelValues(status).Inc()
}

// RecordWatchedFile counts one file handled by the folder watcher
func (m *Metrics) RecordWatchedFile(outcome string) {
	m.watchedFilesTotal.WithLabelValues(outcome).Inc()
}

var _ port.DecisionRecorder = (*Metrics)(nil)
