package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, dispatch, and delivery flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	emailsSentTotal         prometheus.Counter
	emailsFailedTotal       *prometheus.CounterVec
	emailSendDuration       prometheus.Histogram
	workerInflight          *prometheus.GaugeVec
	retryScheduledTotal     prometheus.Counter
	webhookEventsTotal      *prometheus.CounterVec
	columnsProvisionedTotal prometheus.Counter
	documentsRenderedTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "letter_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		emailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "emails_sent_total",
				Help:      "Total number of email jobs accepted by the mail gateway.",
			},
		),
		emailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "emails_failed_total",
				Help:      "Total number of email jobs that ended in failed state.",
			},
			[]string{"reason"},
		),
		emailSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "letter_engine",
				Name:      "email_send_duration_seconds",
				Help:      "Mail gateway send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "letter_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by worker kind.",
			},
			[]string{"worker"},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of email jobs scheduled for retry.",
			},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "webhook_events_total",
				Help:      "Total number of webhook events by event type and processing outcome.",
			},
			[]string{"event", "outcome"},
		),
		columnsProvisionedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "columns_provisioned_total",
				Help:      "Total number of columns added to provisioned row tables.",
			},
		),
		documentsRenderedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "letter_engine",
				Name:      "documents_rendered_total",
				Help:      "Total number of renderer calls by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.emailsSentTotal,
		m.emailsFailedTotal,
		m.emailSendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.webhookEventsTotal,
		m.columnsProvisionedTotal,
		m.documentsRenderedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEmailSent() {
	if m == nil {
		return
	}
	m.emailsSentTotal.Inc()
}

func (m *Metrics) IncEmailFailed(reason string) {
	if m == nil {
		return
	}
	m.emailsFailedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveEmailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.emailSendDuration.Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(worker string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(worker)).Inc()
}

func (m *Metrics) DecWorkerInFlight(worker string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(worker)).Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncWebhookEvent(event string, outcome string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncColumnsProvisioned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.columnsProvisionedTotal.Add(float64(count))
}

func (m *Metrics) IncDocumentRendered(result string) {
	if m == nil {
		return
	}
	m.documentsRenderedTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
