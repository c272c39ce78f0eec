package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/document"
	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 5
	maxBatchSize      = 1000
)

// DocumentGenerator renders and persists one document per recipient.
type DocumentGenerator interface {
	Generate(ctx context.Context, in document.GenerateInput) (*domain.GeneratedDocument, error)
}

// Recipient is one addressee of a bulk send.
type Recipient struct {
	Email       string
	EntityKey   string
	Subject     string
	Body        string
	ExtraFields map[string]string
}

// SendBulkInput describes one bulk send request. CorrelationID travels with
// every dispatch message so worker logs can be tied back to the API call.
type SendBulkInput struct {
	LetterTypeID  string
	TemplateID    string
	SignatureID   string
	RatePerMinute int
	CorrelationID string
	Recipients    []Recipient
}

// BatchSummary is the per-status breakdown of one batch.
type BatchSummary struct {
	BatchID    string
	TotalCount int
	Status     domain.BatchStatus
	Counts     []repository.StatusCount
}

// DispatchService accepts bulk sends: it renders a document per recipient,
// persists every job as Queued before any broker call, then enqueues them.
// A job whose publish fails stays Queued with next_retry_at set so the
// retry scanner picks it up.
type DispatchService struct {
	types       repository.LetterTypeRepository
	jobs        repository.EmailJobRepository
	batches     repository.BatchRepository
	pipeline    DocumentGenerator
	publisher   queue.Publisher
	defaultRate int
	maxRetries  int
	logger      *zap.Logger
	now         func() time.Time
}

func NewDispatchService(
	types repository.LetterTypeRepository,
	jobs repository.EmailJobRepository,
	batches repository.BatchRepository,
	pipeline DocumentGenerator,
	publisher queue.Publisher,
	defaultRate int,
	maxRetries int,
	logger *zap.Logger,
) (*DispatchService, error) {
	if defaultRate < 1 {
		return nil, fmt.Errorf("default rate per minute must be positive")
	}
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		types:       types,
		jobs:        jobs,
		batches:     batches,
		pipeline:    pipeline,
		publisher:   publisher,
		defaultRate: defaultRate,
		maxRetries:  maxRetries,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *DispatchService) SendBulk(ctx context.Context, in SendBulkInput) (*domain.EmailBatch, []domain.EmailJob, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(in.Recipients) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}
	if len(in.Recipients) > maxBatchSize {
		return nil, nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}
	if strings.TrimSpace(in.TemplateID) == "" {
		return nil, nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	rate := in.RatePerMinute
	if rate <= 0 {
		rate = s.defaultRate
	}

	lt, err := s.types.GetByID(ctx, in.LetterTypeID)
	if err != nil {
		return nil, nil, err
	}
	if !lt.IsActive {
		return nil, nil, fmt.Errorf("%w: letter type %q is deactivated", domain.ErrValidation, lt.TypeKey)
	}

	batchID := uuid.NewString()

	jobs := make([]domain.EmailJob, len(in.Recipients))
	jobPtrs := make([]*domain.EmailJob, len(in.Recipients))
	for i := range in.Recipients {
		job, err := s.prepareJob(ctx, lt, batchID, in, &in.Recipients[i])
		if err != nil {
			return nil, nil, err
		}
		jobs[i] = *job
		jobPtrs[i] = &jobs[i]
	}

	batch := &domain.EmailBatch{
		ID:            batchID,
		LetterTypeID:  lt.ID,
		TemplateID:    in.TemplateID,
		RatePerMinute: rate,
		TotalCount:    len(jobs),
		Status:        domain.BatchStatusProcessing,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, nil, err
	}

	// Every job exists as Queued before the first broker call; a crash from
	// here on loses no work, only delays it.
	if err := s.jobs.CreateBatch(ctx, jobPtrs); err != nil {
		_ = s.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusPartialFailure)
		return nil, nil, err
	}

	failed := 0
	for i := range jobPtrs {
		job := jobPtrs[i]
		msg, err := queue.EncodeDispatchMessage(queue.DispatchMessage{
			JobID:         job.ID,
			BatchID:       batch.ID,
			CorrelationID: strings.TrimSpace(in.CorrelationID),
		})
		if err == nil {
			err = s.publisher.Publish(ctx, queue.DispatchQueue, msg)
		}
		if err != nil {
			failed++
			s.logger.Error("failed to publish email job, leaving queued for retry scanner",
				zap.String("jobId", job.ID),
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
			if retryErr := s.jobs.SetNextRetryAt(ctx, job.ID, s.now().UTC()); retryErr != nil {
				s.logger.Error("failed to schedule unpublished job for retry",
					zap.String("jobId", job.ID),
					zap.Error(retryErr),
				)
			}
		}
	}

	if failed > 0 {
		s.logger.Warn("bulk send enqueued with partial failure",
			zap.String("batchId", batch.ID),
			zap.Int("failed", failed),
			zap.Int("total", len(jobs)),
		)
	}

	return batch, jobs, nil
}

func (s *DispatchService) prepareJob(
	ctx context.Context,
	lt *domain.LetterType,
	batchID string,
	in SendBulkInput,
	r *Recipient,
) (*domain.EmailJob, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: recipient %q is not an email address", domain.ErrValidation, r.Email)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required for recipient %q", domain.ErrValidation, email)
	}
	if strings.TrimSpace(r.EntityKey) == "" {
		return nil, fmt.Errorf("%w: entity key is required for recipient %q", domain.ErrValidation, email)
	}

	doc, err := s.pipeline.Generate(ctx, document.GenerateInput{
		LetterTypeID: lt.ID,
		EntityKey:    r.EntityKey,
		TemplateID:   in.TemplateID,
		SignatureID:  in.SignatureID,
		ExtraFields:  r.ExtraFields,
	})
	if err != nil {
		return nil, fmt.Errorf("recipient %q: %w", email, err)
	}

	now := s.now().UTC()
	docID := doc.ID
	return &domain.EmailJob{
		ID:              uuid.NewString(),
		BatchID:         batchID,
		LetterTypeID:    lt.ID,
		Recipient:       email,
		Subject:         strings.TrimSpace(r.Subject),
		Body:            r.Body,
		DocumentID:      &docID,
		TrackingID:      uuid.NewString(),
		Status:          domain.StatusQueued,
		MaxRetries:      s.maxRetries,
		StatusChangedAt: now,
		CreatedAt:       now,
	}, nil
}

// CancelBatch flips the batch to Canceled and cancels its still-queued
// jobs. Jobs already handed to the gateway keep running to their
// webhook-driven terminal status.
func (s *DispatchService) CancelBatch(ctx context.Context, batchID string) (int64, error) {
	if strings.TrimSpace(batchID) == "" {
		return 0, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	batch, err := s.batches.GetByID(ctx, strings.TrimSpace(batchID))
	if err != nil {
		return 0, err
	}
	if batch.Status == domain.BatchStatusCanceled {
		return 0, fmt.Errorf("%w: batch %q is already canceled", domain.ErrConflict, batch.ID)
	}

	if err := s.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusCanceled); err != nil {
		return 0, err
	}

	canceled, err := s.jobs.CancelQueuedByBatch(ctx, batch.ID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("batch canceled",
		zap.String("batchId", batch.ID),
		zap.Int64("canceledJobs", canceled),
	)

	return canceled, nil
}

func (s *DispatchService) GetBatchSummary(ctx context.Context, batchID string) (*BatchSummary, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	batch, err := s.batches.GetByID(ctx, strings.TrimSpace(batchID))
	if err != nil {
		return nil, err
	}

	counts, err := s.jobs.GetBatchSummary(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	return &BatchSummary{
		BatchID:    batch.ID,
		TotalCount: batch.TotalCount,
		Status:     batch.Status,
		Counts:     counts,
	}, nil
}

func (s *DispatchService) GetJob(ctx context.Context, id string) (*domain.EmailJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.GetByID(ctx, strings.TrimSpace(id))
}

func (s *DispatchService) ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.EmailJob, int64, error) {
	return s.jobs.List(ctx, params)
}
