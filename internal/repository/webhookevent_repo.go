package repository

import (
	"context"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	AppendUnmatched(ctx context.Context, e *domain.WebhookEvent) (bool, error)
	GetByJobID(ctx context.Context, jobID string) ([]domain.WebhookEvent, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) ([]domain.WebhookEvent, error)
}

type GormWebhookEventRepo struct {
	db *gorm.DB
}

func NewGormWebhookEventRepo(db *gorm.DB) *GormWebhookEventRepo {
	return &GormWebhookEventRepo{db: db}
}

// AppendUnmatched stores an event that never resolved to a job, keeping the
// audit trail complete after the bounded resolution retries run out. Returns
// false when the provider event id was already recorded.
func (r *GormWebhookEventRepo) AppendUnmatched(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	model := eventModelFromDomain(e)
	model.EmailJobID = nil

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormWebhookEventRepo) GetByJobID(ctx context.Context, jobID string) ([]domain.WebhookEvent, error) {
	var models []WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("email_job_id = ?", jobID).
		Order("event_at ASC, received_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.WebhookEvent, 0, len(models))
	for i := range models {
		events = append(events, *eventModelToDomain(&models[i]))
	}
	return events, nil
}

func (r *GormWebhookEventRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) ([]domain.WebhookEvent, error) {
	var models []WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		Order("event_at ASC, received_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.WebhookEvent, 0, len(models))
	for i := range models {
		events = append(events, *eventModelToDomain(&models[i]))
	}
	return events, nil
}
