package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/observability"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const deliveryWorkerName = "delivery"

// DeliveryService applies provider delivery events to email jobs. An event
// whose provider message id matches no job yet is re-queued with a bounded
// attempt counter: gateway acceptance and the provider's first callback can
// race, so "unknown id" is usually "not yet known".
type DeliveryService struct {
	jobs               repository.EmailJobRepository
	events             repository.WebhookEventRepository
	publisher          queue.Publisher
	maxResolveAttempts int
	logger             *zap.Logger
	metrics            *observability.Metrics
	now                func() time.Time
}

func NewDeliveryService(
	jobs repository.EmailJobRepository,
	events repository.WebhookEventRepository,
	publisher queue.Publisher,
	maxResolveAttempts int,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if maxResolveAttempts < 1 {
		maxResolveAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		jobs:               jobs,
		events:             events,
		publisher:          publisher,
		maxResolveAttempts: maxResolveAttempts,
		logger:             logger,
		now:                time.Now,
	}, nil
}

func (s *DeliveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Apply resolves the event's job and applies it atomically. Replays are
// absorbed by the provider event id unique index; stale or out-of-order
// events are stored for audit without a transition.
func (s *DeliveryService) Apply(ctx context.Context, msg queue.DeliveryEventMessage) error {
	event := s.eventFromMessage(msg)

	job, err := s.jobs.GetByProviderMessageID(ctx, msg.ProviderMessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.handleUnresolved(ctx, msg, event)
		}
		return fmt.Errorf("failed to resolve job by provider message id: %w", err)
	}

	outcome, err := s.jobs.ApplyWebhookEvent(ctx, job.ID, event)
	if err != nil {
		return fmt.Errorf("failed to apply webhook event: %w", err)
	}

	result := "ignored"
	switch {
	case outcome.Duplicate:
		result = "duplicate"
	case outcome.Applied:
		result = "applied"
	}
	if s.metrics != nil {
		s.metrics.IncWebhookEvent(msg.Event.String(), result)
	}

	s.logger.Debug("webhook event processed",
		zap.String("jobId", job.ID),
		zap.String("event", msg.Event.String()),
		zap.String("providerEventId", msg.ProviderEventID),
		zap.String("result", result),
	)

	return nil
}

// handleUnresolved re-queues the event with an incremented attempt counter
// until the bound is hit, then stores it unmatched for audit and drops it.
func (s *DeliveryService) handleUnresolved(ctx context.Context, msg queue.DeliveryEventMessage, event *domain.WebhookEvent) error {
	if msg.Attempts+1 < s.maxResolveAttempts {
		requeue := msg
		requeue.Attempts++

		encoded, err := queue.EncodeDeliveryEventMessage(requeue)
		if err != nil {
			return fmt.Errorf("%w: %v", queue.ErrReject, err)
		}
		if err := s.publisher.Publish(ctx, queue.WebhookQueue, encoded); err != nil {
			return fmt.Errorf("failed to requeue unresolved event: %w", err)
		}

		if s.metrics != nil {
			s.metrics.IncWebhookEvent(msg.Event.String(), "requeued")
		}
		return nil
	}

	stored, err := s.events.AppendUnmatched(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to store unmatched event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncWebhookEvent(msg.Event.String(), "unresolved")
	}
	s.logger.Warn("delivery event never resolved to a job, stored for audit",
		zap.String("providerEventId", msg.ProviderEventID),
		zap.String("providerMessageId", msg.ProviderMessageID),
		zap.String("event", msg.Event.String()),
		zap.Int("attempts", msg.Attempts+1),
		zap.Bool("stored", stored),
	)

	return nil
}

func (s *DeliveryService) eventFromMessage(msg queue.DeliveryEventMessage) *domain.WebhookEvent {
	event := &domain.WebhookEvent{
		ID:                uuid.NewString(),
		ProviderEventID:   msg.ProviderEventID,
		ProviderMessageID: msg.ProviderMessageID,
		EventType:         msg.Event,
		EventAt:           msg.EventAt,
		RawBody:           msg.RawBody,
		ReceivedAt:        s.now().UTC(),
	}
	if msg.Reason != "" {
		reason := msg.Reason
		event.Reason = &reason
	}
	if msg.Response != "" {
		response := msg.Response
		event.Response = &response
	}
	return event
}

// DeliveryWorker consumes the webhook events queue and feeds the delivery
// state machine.
type DeliveryWorker struct {
	service     *DeliveryService
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewDeliveryWorker(
	service *DeliveryService,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*DeliveryWorker, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryWorker{
		service:     service,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *DeliveryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

func (w *DeliveryWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("delivery worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.WebhookQueue, w.processMessage)
			if err != nil {
				w.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("delivery worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *DeliveryWorker) processMessage(ctx context.Context, raw queue.Message) error {
	msg, err := queue.DecodeDeliveryEventMessage(raw)
	if err != nil {
		w.logger.Warn("rejecting malformed delivery event", zap.Error(err))
		return fmt.Errorf("%w: %v", queue.ErrReject, err)
	}

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(deliveryWorkerName)
		defer w.metrics.DecWorkerInFlight(deliveryWorkerName)
	}

	return w.service.Apply(ctx, msg)
}
