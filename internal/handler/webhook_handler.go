package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// WebhookHandler authenticates provider callbacks and hands each event to
// the broker. Processing is asynchronous: the provider gets a 200 as soon
// as the events are enqueued, and never a 4xx for an event that cannot be
// matched to a job.
type WebhookHandler struct {
	publisher queue.Publisher
	secret    []byte
	logger    *zap.Logger
}

func NewWebhookHandler(publisher queue.Publisher, secret string, logger *zap.Logger) (*WebhookHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookHandler{
		publisher: publisher,
		secret:    []byte(secret),
		logger:    logger,
	}, nil
}

func RegisterWebhookRoutes(router fiber.Router, publisher queue.Publisher, secret string, logger *zap.Logger) error {
	h, err := NewWebhookHandler(publisher, secret, logger)
	if err != nil {
		return err
	}

	router.Post("/webhooks/delivery", h.ReceiveDeliveryEvents)
	return nil
}

// deliveryEventPayload is the provider's wire format. Timestamp is epoch
// seconds.
type deliveryEventPayload struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	SGEventID   string `json:"sg_event_id"`
	Reason      string `json:"reason,omitempty"`
	Response    string `json:"response,omitempty"`
}

type webhookAckResponse struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

func (h *WebhookHandler) ReceiveDeliveryEvents(c *fiber.Ctx) error {
	body := c.Body()

	// Authenticate the raw body before any parsing or side effect.
	if !h.verifySignature(body, c.Get(webhookSignatureHeader)) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid webhook signature")
	}

	events, err := parseDeliveryEvents(body)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid webhook payload")
	}

	accepted := 0
	skipped := 0
	for i := range events {
		msg, err := toDeliveryEventMessage(&events[i], body)
		if err != nil {
			skipped++
			h.logger.Warn("skipping malformed delivery event",
				zap.String("sgEventId", events[i].SGEventID),
				zap.String("event", events[i].Event),
				zap.Error(err),
			)
			continue
		}

		encoded, err := queue.EncodeDeliveryEventMessage(msg)
		if err != nil {
			skipped++
			h.logger.Warn("skipping unencodable delivery event",
				zap.String("sgEventId", events[i].SGEventID),
				zap.Error(err),
			)
			continue
		}

		if err := h.publisher.Publish(c.Context(), queue.WebhookQueue, encoded); err != nil {
			// A broker outage must surface as 5xx so the provider re-delivers.
			return fmt.Errorf("failed to enqueue delivery event: %w", err)
		}
		accepted++
	}

	return c.Status(fiber.StatusOK).JSON(webhookAckResponse{
		Accepted: accepted,
		Skipped:  skipped,
	})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return subtle.ConstantTimeCompare(provided, expected) == 1
}

// parseDeliveryEvents accepts both a JSON array of events and a single
// event object.
func parseDeliveryEvents(body []byte) ([]deliveryEventPayload, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty body")
	}

	if strings.HasPrefix(trimmed, "[") {
		var events []deliveryEventPayload
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var event deliveryEventPayload
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return []deliveryEventPayload{event}, nil
}

func toDeliveryEventMessage(p *deliveryEventPayload, rawBody []byte) (queue.DeliveryEventMessage, error) {
	eventType, err := domain.ParseEventTypeFromString(p.Event)
	if err != nil {
		return queue.DeliveryEventMessage{}, err
	}
	if p.Timestamp <= 0 {
		return queue.DeliveryEventMessage{}, fmt.Errorf("%w: timestamp is required", domain.ErrValidation)
	}

	return queue.DeliveryEventMessage{
		ProviderEventID:   strings.TrimSpace(p.SGEventID),
		ProviderMessageID: strings.TrimSpace(p.SGMessageID),
		Event:             eventType,
		EventAt:           time.Unix(p.Timestamp, 0).UTC(),
		Reason:            p.Reason,
		Response:          p.Response,
		RawBody:           string(rawBody),
	}, nil
}
