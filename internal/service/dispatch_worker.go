package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/gateway"
	"github.com/burakkarakan/letter-engine/internal/observability"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/burakkarakan/letter-engine/internal/ratelimit"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	baseRetryDelay       = 2 * time.Second
	maxRetryDelay        = 10 * time.Minute
	maxRetryJitterMillis = 1000

	dispatchWorkerName = "dispatch"
)

// DispatchWorker consumes the dispatch queue and pushes each claimed job
// through the mail gateway, honoring the batch's rolling-window rate limit.
type DispatchWorker struct {
	jobs        repository.EmailJobRepository
	batches     repository.BatchRepository
	documents   repository.DocumentRepository
	consumer    queue.Consumer
	gateway     gateway.Gateway
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewDispatchWorker(
	jobs repository.EmailJobRepository,
	batches repository.BatchRepository,
	documents repository.DocumentRepository,
	consumer queue.Consumer,
	gw gateway.Gateway,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		jobs:        jobs,
		batches:     batches,
		documents:   documents,
		consumer:    consumer,
		gateway:     gw,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (w *DispatchWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the dispatch queue until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("dispatch worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.DispatchQueue, w.processMessage)
			if err != nil {
				w.logger.Error("dispatch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *DispatchWorker) processMessage(ctx context.Context, raw queue.Message) error {
	msg, err := queue.DecodeDispatchMessage(raw)
	if err != nil {
		w.logger.Warn("rejecting malformed dispatch message", zap.Error(err))
		return fmt.Errorf("%w: %v", queue.ErrReject, err)
	}

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(w.logger, ctx)

	batch, err := w.batches.GetByID(ctx, msg.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("batch not found for dispatch message, skipping",
				zap.String("jobId", msg.JobID),
				zap.String("batchId", msg.BatchID),
			)
			return nil
		}
		return fmt.Errorf("failed to load batch: %w", err)
	}
	// The cancel flow flips still-queued jobs itself; skipping here only
	// avoids claiming a job in the race window.
	if batch.Status == domain.BatchStatusCanceled {
		return nil
	}

	job, err := w.jobs.LockForSending(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("job not found during lock, skipping", zap.String("jobId", msg.JobID))
			return nil
		}
		return fmt.Errorf("failed to lock job for sending: %w", err)
	}

	// Nil means the job is no longer Queued; ack and skip.
	if job == nil {
		return nil
	}

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(dispatchWorkerName)
		defer w.metrics.DecWorkerInFlight(dispatchWorkerName)
	}

	if err := w.rateLimiter.Wait(ctx, "batch:"+batch.ID, batch.RatePerMinute); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	email := gateway.OutboundEmail{
		To:         job.Recipient,
		Subject:    job.Subject,
		Body:       job.Body,
		TrackingID: job.TrackingID,
	}
	if job.DocumentID != nil {
		attachment, err := w.loadAttachment(ctx, *job.DocumentID)
		if err != nil {
			return err
		}
		email.Attachment = attachment
	}

	sendStart := w.now()
	resp, sendErr := w.gateway.Send(ctx, email)
	if w.metrics != nil {
		w.metrics.ObserveEmailSendDuration(w.now().Sub(sendStart))
	}

	if sendErr == nil {
		messageID := ""
		if resp != nil {
			messageID = resp.MessageID
		}
		if messageID == "" {
			// Without the provider id no webhook can ever resolve this job.
			messageID = job.TrackingID
			logger.Warn("gateway accepted without message id, falling back to tracking id",
				zap.String("jobId", job.ID),
			)
		}

		if err := w.jobs.MarkSent(ctx, job.ID, messageID, w.now().UTC()); err != nil {
			return fmt.Errorf("failed to mark job as sent: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncEmailSent()
		}
		return nil
	}

	return w.handleSendFailure(ctx, job, sendErr)
}

func (w *DispatchWorker) handleSendFailure(ctx context.Context, job *domain.EmailJob, sendErr error) error {
	isTransient := gateway.IsTransient(sendErr)
	attemptNumber := job.RetryCount + 1

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if isTransient && attemptNumber < maxRetries {
		nextRetryAt := w.now().Add(w.computeRetryDelay(attemptNumber))
		if err := w.jobs.ScheduleRetry(ctx, job.ID, sendErr.Error(), nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule job retry: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncRetryScheduled()
		}
		w.logger.Info("send failed, retry scheduled",
			zap.String("jobId", job.ID),
			zap.Int("attempt", attemptNumber),
			zap.Time("nextRetryAt", nextRetryAt),
			zap.Error(sendErr),
		)
		return nil
	}

	if err := w.jobs.MarkFailed(ctx, job.ID, sendErr.Error()); err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	if w.metrics != nil {
		reason := "permanent_error"
		if isTransient {
			reason = "retry_exhausted"
		}
		w.metrics.IncEmailFailed(reason)
	}
	w.logger.Warn("job failed terminally",
		zap.String("jobId", job.ID),
		zap.Int("attempts", attemptNumber),
		zap.Error(sendErr),
	)

	return nil
}

func (w *DispatchWorker) loadAttachment(ctx context.Context, documentID string) (*gateway.Attachment, error) {
	doc, err := w.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachment document: %w", err)
	}

	return &gateway.Attachment{
		Filename:    "document.pdf",
		ContentType: "application/pdf",
		Content:     doc.Content,
	}, nil
}

func (w *DispatchWorker) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if w.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = w.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}
