package queue

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DispatchQueue carries email job ids waiting to be sent.
	DispatchQueue = "email.dispatch"
	// WebhookQueue carries provider delivery events waiting to be applied.
	WebhookQueue = "webhook.events"
)

// ErrReject tells the consumer to dead-letter the message instead of
// requeueing it. Handlers return it for payloads that can never succeed.
var ErrReject = errors.New("message rejected")

// Message is a raw broker payload plus its delivery metadata.
type Message struct {
	MessageID     string
	CorrelationID string
	Body          []byte
}

// Publisher publishes messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer consumes messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var workQueues = []string{DispatchQueue, WebhookQueue}

// DLQName returns the dead-letter queue name, e.g. dlq.email.dispatch.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues (2 total).
func WorkQueueNames() []string {
	queues := make([]string, len(workQueues))
	copy(queues, workQueues)
	return queues
}

// DLQNames returns all dead-letter queues (2 total).
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, q := range workQueues {
		queues = append(queues, DLQName(q))
	}
	return queues
}
