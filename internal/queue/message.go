package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
)

// DispatchMessage is the broker payload for email job dispatch.
type DispatchMessage struct {
	JobID         string `json:"jobId"`
	BatchID       string `json:"batchId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	return nil
}

// DeliveryEventMessage is the broker payload for a provider delivery event.
// Attempts counts how many times the event failed to resolve to a job; a
// re-published message carries the incremented counter.
type DeliveryEventMessage struct {
	ProviderEventID   string           `json:"providerEventId"`
	ProviderMessageID string           `json:"providerMessageId"`
	Event             domain.EventType `json:"event"`
	EventAt           time.Time        `json:"eventAt"`
	Reason            string           `json:"reason,omitempty"`
	Response          string           `json:"response,omitempty"`
	RawBody           string           `json:"rawBody,omitempty"`
	Attempts          int              `json:"attempts"`
}

func (m DeliveryEventMessage) Validate() error {
	if strings.TrimSpace(m.ProviderEventID) == "" {
		return fmt.Errorf("providerEventId is required")
	}
	if strings.TrimSpace(m.ProviderMessageID) == "" {
		return fmt.Errorf("providerMessageId is required")
	}
	if !m.Event.IsValid() {
		return fmt.Errorf("invalid event type %q", m.Event)
	}
	if m.EventAt.IsZero() {
		return fmt.Errorf("eventAt is required")
	}
	return nil
}

// EncodeDispatchMessage serializes a dispatch payload into a broker message.
func EncodeDispatchMessage(msg DispatchMessage) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid dispatch message: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}
	return Message{
		MessageID:     msg.JobID,
		CorrelationID: msg.CorrelationID,
		Body:          body,
	}, nil
}

// DecodeDispatchMessage parses and validates a dispatch payload.
func DecodeDispatchMessage(msg Message) (DispatchMessage, error) {
	var out DispatchMessage
	if err := json.Unmarshal(msg.Body, &out); err != nil {
		return DispatchMessage{}, fmt.Errorf("failed to unmarshal dispatch message: %w", err)
	}
	if err := out.Validate(); err != nil {
		return DispatchMessage{}, fmt.Errorf("invalid dispatch message: %w", err)
	}
	return out, nil
}

// EncodeDeliveryEventMessage serializes a delivery event into a broker message.
func EncodeDeliveryEventMessage(msg DeliveryEventMessage) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid delivery event message: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal delivery event message: %w", err)
	}
	return Message{
		MessageID: msg.ProviderEventID,
		Body:      body,
	}, nil
}

// DecodeDeliveryEventMessage parses and validates a delivery event payload.
func DecodeDeliveryEventMessage(msg Message) (DeliveryEventMessage, error) {
	var out DeliveryEventMessage
	if err := json.Unmarshal(msg.Body, &out); err != nil {
		return DeliveryEventMessage{}, fmt.Errorf("failed to unmarshal delivery event message: %w", err)
	}
	if err := out.Validate(); err != nil {
		return DeliveryEventMessage{}, fmt.Errorf("invalid delivery event message: %w", err)
	}
	return out, nil
}
