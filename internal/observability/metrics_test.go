package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncEmailSent()
	metrics.IncEmailFailed("retry_exhausted")
	metrics.ObserveEmailSendDuration(120 * time.Millisecond)
	metrics.IncWorkerInFlight("dispatch")
	metrics.DecWorkerInFlight("dispatch")
	metrics.IncRetryScheduled()
	metrics.IncWebhookEvent("delivered", "applied")
	metrics.IncWebhookEvent("delivered", "duplicate")
	metrics.IncColumnsProvisioned(3)

	if got := testutil.ToFloat64(metrics.emailsSentTotal); got != 1 {
		t.Fatalf("emails_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.emailsFailedTotal.WithLabelValues("retry_exhausted")); got != 1 {
		t.Fatalf("emails_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("dispatch")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.webhookEventsTotal.WithLabelValues("delivered", "applied")); got != 1 {
		t.Fatalf("webhook_events_total{applied} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.webhookEventsTotal.WithLabelValues("delivered", "duplicate")); got != 1 {
		t.Fatalf("webhook_events_total{duplicate} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.columnsProvisionedTotal); got != 3 {
		t.Fatalf("columns_provisioned_total = %v, want 3", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
