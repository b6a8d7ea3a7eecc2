// Package monitoring exposes router metrics in Prometheus format.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "headyrouter"

// Metrics holds the router collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ToolCalls        *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	BackendsConnected prometheus.Gauge
	BackendsPruned    *prometheus.CounterVec

	GovernanceDenied prometheus.Counter
	Selections       *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls forwarded to backends",
		}, []string{"service", "status"}),
		ToolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Backend tool call duration in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),

		BackendsConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backends_connected",
			Help:      "Number of live backend connections",
		}),
		BackendsPruned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backends_pruned_total",
			Help:      "Backends disconnected by the supervisor",
		}, []string{"service"}),

		GovernanceDenied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governance_denied_total",
			Help:      "Requests denied by governance",
		}),
		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Service selections by source",
		}, []string{"source"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordToolCall counts a forwarded call.
func (m *Metrics) RecordToolCall(service, status string, d time.Duration) {
	m.ToolCalls.WithLabelValues(service, status).Inc()
	m.ToolCallDuration.WithLabelValues(service).Observe(d.Seconds())
}

// SetConnected sets the live connection gauge. It matches backend.Options.OnChange.
func (m *Metrics) SetConnected(n int) {
	m.BackendsConnected.Set(float64(n))
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
