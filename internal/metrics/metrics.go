// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "visadesk"

// Collector holds the service's Prometheus metrics.
type Collector struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	CasesCreated         prometheus.Counter
	CaseTransitions      *prometheus.CounterVec
	RemindersTriggered   prometheus.Counter
	AuditAlertsGenerated *prometheus.CounterVec
	SweepFailures        *prometheus.CounterVec
	SweepDuration        *prometheus.HistogramVec
	InvoicesIssued       prometheus.Counter
}

// NewCollector registers and returns the service metrics.
func NewCollector() *Collector {
	return &Collector{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, path and status code",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "created_total",
			Help:      "Total visa cases created",
		}),

		CaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "transitions_total",
			Help:      "Total case status transitions by target status",
		}, []string{"status"}),

		RemindersTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "reminders_triggered_total",
			Help:      "Total reminders fired by the reminder sweep",
		}),

		AuditAlertsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "audit_alerts_generated_total",
			Help:      "Total alerts generated by the document audit by kind",
		}, []string{"kind"}),

		SweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Total per-case persistence failures during sweeps",
		}, []string{"task"}),

		SweepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep execution time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"task"}),

		InvoicesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "invoices_issued_total",
			Help:      "Total invoices issued",
		}),
	}
}

// HTTPMiddleware records request counts and latency per route.
func (c *Collector) HTTPMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.HTTPRequestsTotal.WithLabelValues(
			ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPRequestDuration.WithLabelValues(
			ctx.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
