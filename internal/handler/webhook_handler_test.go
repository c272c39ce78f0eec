package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/gofiber/fiber/v2"
)

const testWebhookSecret = "test-secret"

type capturedPublish struct {
	Queue   string
	Message queue.Message
}

type fakePublisher struct {
	mu        sync.Mutex
	published []capturedPublish
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, queueName string, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, capturedPublish{Queue: queueName, Message: msg})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newWebhookApp(t *testing.T, pub *fakePublisher) *fiber.App {
	t.Helper()

	app := fiber.New()
	if err := RegisterWebhookRoutes(app, pub, testWebhookSecret, nil); err != nil {
		t.Fatalf("RegisterWebhookRoutes() unexpected error: %v", err)
	}
	return app
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/delivery", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhookSignatureHeader, signature)
	}
	return req
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	app := newWebhookApp(t, pub)

	body := []byte(`[{"email":"a@example.com","timestamp":1756000000,"event":"delivered","sg_message_id":"m1","sg_event_id":"e1"}]`)

	resp, err := app.Test(webhookRequest(body, "deadbeef"))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if len(pub.published) != 0 {
		t.Fatal("no event may be enqueued before authentication")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	t.Parallel()

	app := newWebhookApp(t, &fakePublisher{})

	resp, err := app.Test(webhookRequest([]byte(`[]`), ""))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebhookEnqueuesEventBatch(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	app := newWebhookApp(t, pub)

	body := []byte(`[
		{"email":"a@example.com","timestamp":1756000000,"event":"delivered","sg_message_id":"m1","sg_event_id":"e1"},
		{"email":"a@example.com","timestamp":1756000100,"event":"bounce","sg_message_id":"m2","sg_event_id":"e2","reason":"mailbox full"}
	]`)

	resp, err := app.Test(webhookRequest(body, sign(body)))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var ack webhookAckResponse
	decodeJSONBody(t, resp.Body, &ack)
	if ack.Accepted != 2 || ack.Skipped != 0 {
		t.Fatalf("ack = %+v, want 2 accepted", ack)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published = %d, want 2", len(pub.published))
	}
	if pub.published[0].Queue != queue.WebhookQueue {
		t.Fatalf("published to %q, want %q", pub.published[0].Queue, queue.WebhookQueue)
	}

	msg, err := queue.DecodeDeliveryEventMessage(pub.published[1].Message)
	if err != nil {
		t.Fatalf("published message does not decode: %v", err)
	}
	if msg.Event != domain.EventBounce {
		t.Fatalf("event = %s, want bounce", msg.Event)
	}
	if msg.Reason != "mailbox full" {
		t.Fatalf("reason = %q, want mailbox full", msg.Reason)
	}
	if msg.ProviderEventID != "e2" || msg.ProviderMessageID != "m2" {
		t.Fatalf("provider ids = %q/%q, want e2/m2", msg.ProviderEventID, msg.ProviderMessageID)
	}
}

func TestWebhookAcceptsSingleObjectPayload(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	app := newWebhookApp(t, pub)

	body := []byte(`{"email":"a@example.com","timestamp":1756000000,"event":"open","sg_message_id":"m1","sg_event_id":"e1"}`)

	resp, err := app.Test(webhookRequest(body, sign(body)))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
}

func TestWebhookSkipsUnknownEventType(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	app := newWebhookApp(t, pub)

	body := []byte(`[
		{"email":"a@example.com","timestamp":1756000000,"event":"processed","sg_message_id":"m1","sg_event_id":"e1"},
		{"email":"a@example.com","timestamp":1756000000,"event":"delivered","sg_message_id":"m2","sg_event_id":"e2"}
	]`)

	resp, err := app.Test(webhookRequest(body, sign(body)))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var ack webhookAckResponse
	decodeJSONBody(t, resp.Body, &ack)
	if ack.Accepted != 1 || ack.Skipped != 1 {
		t.Fatalf("ack = %+v, want 1 accepted and 1 skipped", ack)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	t.Parallel()

	app := newWebhookApp(t, &fakePublisher{})

	body := []byte(`{not json`)
	resp, err := app.Test(webhookRequest(body, sign(body)))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhookBrokerOutageIsServerError(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker down")}
	app := newWebhookApp(t, pub)

	body := []byte(`[{"email":"a@example.com","timestamp":1756000000,"event":"delivered","sg_message_id":"m1","sg_event_id":"e1"}]`)

	resp, err := app.Test(webhookRequest(body, sign(body)))
	if err != nil {
		t.Fatalf("app.Test() unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider re-delivers", resp.StatusCode)
	}
}

func decodeJSONBody(t *testing.T, r io.ReadCloser, out any) {
	t.Helper()
	defer r.Close()
	if err := json.NewDecoder(r).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
