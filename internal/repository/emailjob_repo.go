package repository

import (
	"context"
	"errors"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobListParams struct {
	Status   *domain.JobStatus
	BatchID  *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type StatusCount struct {
	Status domain.JobStatus `gorm:"column:status"`
	Count  int              `gorm:"column:count"`
}

// EventOutcome reports what an atomic event application did.
type EventOutcome struct {
	Duplicate bool
	Applied   bool
}

type EmailJobRepository interface {
	CreateBatch(ctx context.Context, jobs []*domain.EmailJob) error
	GetByID(ctx context.Context, id string) (*domain.EmailJob, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.EmailJob, error)
	List(ctx context.Context, params JobListParams) ([]domain.EmailJob, int64, error)
	LockForSending(ctx context.Context, id string) (*domain.EmailJob, error)
	MarkSent(ctx context.Context, id string, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	ScheduleRetry(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error
	SetNextRetryAt(ctx context.Context, id string, nextRetryAt time.Time) error
	ClearNextRetryAt(ctx context.Context, id string) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.EmailJob, error)
	CancelQueuedByBatch(ctx context.Context, batchID string) (int64, error)
	ApplyWebhookEvent(ctx context.Context, jobID string, event *domain.WebhookEvent) (EventOutcome, error)
	GetBatchSummary(ctx context.Context, batchID string) ([]StatusCount, error)
}

type GormEmailJobRepo struct {
	db *gorm.DB
}

func NewGormEmailJobRepo(db *gorm.DB) *GormEmailJobRepo {
	return &GormEmailJobRepo{db: db}
}

func (r *GormEmailJobRepo) CreateBatch(ctx context.Context, jobs []*domain.EmailJob) error {
	models := make([]EmailJobModel, 0, len(jobs))
	modelIndexes := make([]int, 0, len(jobs))
	for i, j := range jobs {
		model := jobModelFromDomain(j)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(jobs) && jobs[idx] != nil {
			*jobs[idx] = *jobModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormEmailJobRepo) GetByID(ctx context.Context, id string) (*domain.EmailJob, error) {
	var model EmailJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormEmailJobRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.EmailJob, error) {
	var model EmailJobModel
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormEmailJobRepo) List(ctx context.Context, params JobListParams) ([]domain.EmailJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&EmailJobModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.BatchID != nil {
		query = query.Where("batch_id = ?", *params.BatchID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []EmailJobModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]domain.EmailJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, total, nil
}

// LockForSending claims a queued job under a row lock and moves it to
// SENDING. Nil result means the job is no longer dispatchable; the caller
// acks and moves on.
func (r *GormEmailJobRepo) LockForSending(ctx context.Context, id string) (*domain.EmailJob, error) {
	var claimed *domain.EmailJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model EmailJobModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if model.Status != domain.StatusQueued {
			return nil
		}

		if err := tx.Model(&model).Update("status", domain.StatusSending).Error; err != nil {
			return err
		}
		model.Status = domain.StatusSending
		claimed = jobModelToDomain(&model)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (r *GormEmailJobRepo) MarkSent(ctx context.Context, id string, providerMessageID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(map[string]any{
			"status":              domain.StatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             sentAt,
			"status_changed_at":   sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormEmailJobRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            domain.StatusFailed,
			"last_error":        lastError,
			"status_changed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormEmailJobRepo) ScheduleRetry(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            domain.StatusQueued,
			"last_error":        lastError,
			"next_retry_at":     nextRetryAt,
			"retry_count":       gorm.Expr("retry_count + 1"),
			"status_changed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetNextRetryAt schedules a queued job for the retry scanner without
// consuming a send attempt. Used when the initial publish fails.
func (r *GormEmailJobRepo) SetNextRetryAt(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusQueued).
		Update("next_retry_at", nextRetryAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormEmailJobRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormEmailJobRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.EmailJob, error) {
	var models []EmailJobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusQueued, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.EmailJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormEmailJobRepo) CancelQueuedByBatch(ctx context.Context, batchID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Where("batch_id = ? AND status = ?", batchID, domain.StatusQueued).
		Updates(map[string]any{
			"status":            domain.StatusCanceled,
			"status_changed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ApplyWebhookEvent appends the audit row and advances the job status in a
// single transaction, serialized per job by the row lock. A repeated
// provider event id is detected by the unique index and produces no
// transition.
func (r *GormEmailJobRepo) ApplyWebhookEvent(ctx context.Context, jobID string, event *domain.WebhookEvent) (EventOutcome, error) {
	var outcome EventOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eventModel := eventModelFromDomain(event)
		eventModel.EmailJobID = &jobID

		insert := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "provider_event_id"}},
				DoNothing: true,
			}).
			Create(eventModel)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			outcome.Duplicate = true
			return nil
		}

		var model EmailJobModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", jobID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		job := jobModelToDomain(&model)
		if !domain.ApplyEvent(job, event) {
			return nil
		}

		if err := tx.Model(&EmailJobModel{}).
			Where("id = ?", jobID).
			Updates(map[string]any{
				"status":            job.Status,
				"status_changed_at": job.StatusChangedAt,
				"delivered_at":      job.DeliveredAt,
				"opened_at":         job.OpenedAt,
				"clicked_at":        job.ClickedAt,
				"unsubscribed_at":   job.UnsubscribedAt,
				"last_error":        job.LastError,
			}).Error; err != nil {
			return err
		}

		outcome.Applied = true
		return nil
	})
	if err != nil {
		return EventOutcome{}, err
	}

	return outcome, nil
}

func (r *GormEmailJobRepo) GetBatchSummary(ctx context.Context, batchID string) ([]StatusCount, error) {
	var summaries []StatusCount
	err := r.db.WithContext(ctx).
		Model(&EmailJobModel{}).
		Select("status, COUNT(*) as count").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
