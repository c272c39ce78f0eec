package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an email job.
type JobStatus string

const (
	StatusQueued       JobStatus = "QUEUED"
	StatusSending      JobStatus = "SENDING"
	StatusSent         JobStatus = "SENT"
	StatusDelivered    JobStatus = "DELIVERED"
	StatusBounced      JobStatus = "BOUNCED"
	StatusDropped      JobStatus = "DROPPED"
	StatusSpamReported JobStatus = "SPAM_REPORTED"
	StatusUnsubscribed JobStatus = "UNSUBSCRIBED"
	StatusFailed       JobStatus = "FAILED"
	StatusCanceled     JobStatus = "CANCELED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusBounced,
		StatusDropped, StatusSpamReported, StatusUnsubscribed, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// Ordinal places webhook-advanceable statuses on the delivery progression:
// Queued(0) < Sent(1) < {Delivered,Bounced,Dropped,SpamReported}(2) <
// Unsubscribed(3). Failed and Canceled are dispatch-side terminals and
// return -1: webhook events never move a job out of them.
func (s JobStatus) Ordinal() int {
	switch s {
	case StatusQueued, StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered, StatusBounced, StatusDropped, StatusSpamReported:
		return 2
	case StatusUnsubscribed:
		return 3
	}
	return -1
}

// IsTerminal reports whether no further automatic transition occurs.
// Delivered-rank statuses can still advance to Unsubscribed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusUnsubscribed, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanAdvance reports whether a job may move from current to next. Equal
// ordinals never advance: the first accepted event at a rank wins, so a
// late Bounced after Delivered (or a replayed Delivered) is audit-only.
func CanAdvance(current, next JobStatus) bool {
	currentOrd := current.Ordinal()
	nextOrd := next.Ordinal()
	if currentOrd < 0 || nextOrd < 0 {
		return false
	}
	return nextOrd > currentOrd
}

// EmailJob is one tracked attempt to deliver one rendered document to one
// recipient. Created by the dispatcher in StatusQueued; mutated only by the
// delivery state machine after gateway acceptance. Never deleted.
type EmailJob struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	BatchID           string `gorm:"type:uuid;not null"`
	LetterTypeID      string `gorm:"type:uuid;not null"`
	Recipient         string `gorm:"type:varchar(255);not null"`
	Subject           string `gorm:"type:varchar(500);not null"`
	Body              string `gorm:"type:text;not null"`
	DocumentID        *string
	TrackingID        string    `gorm:"type:uuid;not null"`
	ProviderMessageID *string   `gorm:"type:varchar(255)"`
	Status            JobStatus `gorm:"type:varchar(20);not null"`
	RetryCount        int       `gorm:"not null;default:0"`
	MaxRetries        int       `gorm:"not null;default:5"`
	NextRetryAt       *time.Time
	StatusChangedAt   time.Time `gorm:"not null"`
	SentAt            *time.Time
	DeliveredAt       *time.Time
	OpenedAt          *time.Time
	ClickedAt         *time.Time
	UnsubscribedAt    *time.Time
	LastError         *string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (j *EmailJob) Validate() error {
	if strings.TrimSpace(j.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !strings.Contains(j.Recipient, "@") {
		return fmt.Errorf("%w: recipient %q is not an email address", ErrValidation, j.Recipient)
	}
	if strings.TrimSpace(j.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, j.Status)
	}
	return nil
}

// BatchStatus represents the processing state of a bulk send.
type BatchStatus string

const (
	BatchStatusProcessing     BatchStatus = "PROCESSING"
	BatchStatusCompleted      BatchStatus = "COMPLETED"
	BatchStatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
	BatchStatusCanceled       BatchStatus = "CANCELED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusCompleted, BatchStatusPartialFailure, BatchStatusCanceled:
		return true
	}
	return false
}

// EmailBatch groups the email jobs of one bulk send request and carries the
// request's rolling-window rate limit.
type EmailBatch struct {
	ID            string      `gorm:"type:uuid;primaryKey"`
	LetterTypeID  string      `gorm:"type:uuid;not null"`
	TemplateID    string      `gorm:"type:varchar(128);not null"`
	RatePerMinute int         `gorm:"not null"`
	TotalCount    int         `gorm:"not null"`
	Status        BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
