package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType is a delivery-provider callback event, using the provider's
// wire names.
type EventType string

const (
	EventDelivered   EventType = "delivered"
	EventBounce      EventType = "bounce"
	EventDropped     EventType = "dropped"
	EventSpamReport  EventType = "spam_report"
	EventUnsubscribe EventType = "unsubscribe"
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventDelivered, EventBounce, EventDropped, EventSpamReport,
		EventUnsubscribe, EventOpen, EventClick:
		return true
	}
	return false
}

// IsAuxiliary reports whether the event only records a side-marker
// timestamp and never changes job status.
func (e EventType) IsAuxiliary() bool {
	return e == EventOpen || e == EventClick
}

// TargetStatus maps a status-bearing event to the job status it advances
// toward. Auxiliary events have no target.
func (e EventType) TargetStatus() (JobStatus, bool) {
	switch e {
	case EventDelivered:
		return StatusDelivered, true
	case EventBounce:
		return StatusBounced, true
	case EventDropped:
		return StatusDropped, true
	case EventSpamReport:
		return StatusSpamReported, true
	case EventUnsubscribe:
		return StatusUnsubscribed, true
	}
	return "", false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return e, nil
}

// WebhookEvent is the append-only audit record of one inbound provider
// callback. ProviderEventID is the provider's de-duplication key; a repeat
// id is kept for audit but produces no state transition. Immutable once
// stored.
type WebhookEvent struct {
	ID                string    `gorm:"type:uuid;primaryKey"`
	ProviderEventID   string    `gorm:"type:varchar(128);not null"`
	ProviderMessageID string    `gorm:"type:varchar(255);not null"`
	EmailJobID        *string   `gorm:"type:uuid"`
	Email             string    `gorm:"type:varchar(255)"`
	EventType         EventType `gorm:"type:varchar(20);not null"`
	EventAt           time.Time `gorm:"not null"`
	Reason            *string   `gorm:"type:text"`
	Response          *string   `gorm:"type:text"`
	RawBody           string    `gorm:"type:text"`
	ReceivedAt        time.Time `gorm:"not null"`
}

func (e *WebhookEvent) Validate() error {
	if strings.TrimSpace(e.ProviderEventID) == "" {
		return fmt.Errorf("%w: provider event id is required", ErrValidation)
	}
	if strings.TrimSpace(e.ProviderMessageID) == "" {
		return fmt.Errorf("%w: provider message id is required", ErrValidation)
	}
	if !e.EventType.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, e.EventType)
	}
	if e.EventAt.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", ErrValidation)
	}
	return nil
}

// ApplyEvent advances a job in place per the state machine rules and
// reports whether anything changed. The caller is responsible for holding
// the job's row lock so concurrent advances serialize.
//
// Auxiliary events record the earliest open/click timestamp and never touch
// status. Status-bearing events advance only when the target ordinal is
// strictly greater than the current one and the event is not older than the
// current status timestamp.
func ApplyEvent(job *EmailJob, event *WebhookEvent) bool {
	if job == nil || event == nil {
		return false
	}

	if event.EventType.IsAuxiliary() {
		switch event.EventType {
		case EventOpen:
			if job.OpenedAt == nil || event.EventAt.Before(*job.OpenedAt) {
				at := event.EventAt
				job.OpenedAt = &at
				return true
			}
		case EventClick:
			if job.ClickedAt == nil || event.EventAt.Before(*job.ClickedAt) {
				at := event.EventAt
				job.ClickedAt = &at
				return true
			}
		}
		return false
	}

	target, ok := event.EventType.TargetStatus()
	if !ok {
		return false
	}
	if !CanAdvance(job.Status, target) {
		return false
	}
	if event.EventAt.Before(job.StatusChangedAt) {
		return false
	}

	job.Status = target
	job.StatusChangedAt = event.EventAt
	switch target {
	case StatusDelivered:
		at := event.EventAt
		job.DeliveredAt = &at
	case StatusUnsubscribed:
		at := event.EventAt
		job.UnsubscribedAt = &at
	case StatusBounced, StatusDropped, StatusSpamReported:
		if event.Reason != nil {
			job.LastError = event.Reason
		}
	}
	return true
}
