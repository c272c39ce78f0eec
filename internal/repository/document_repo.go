package repository

import (
	"context"
	"errors"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"gorm.io/gorm"
)

type DocumentRepository interface {
	Create(ctx context.Context, d *domain.GeneratedDocument) error
	GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error)
}

type GormDocumentRepo struct {
	db *gorm.DB
}

func NewGormDocumentRepo(db *gorm.DB) *GormDocumentRepo {
	return &GormDocumentRepo{db: db}
}

func (r *GormDocumentRepo) Create(ctx context.Context, d *domain.GeneratedDocument) error {
	model := documentModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *documentModelToDomain(model)
	}
	return nil
}

func (r *GormDocumentRepo) GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error) {
	var model GeneratedDocumentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return documentModelToDomain(&model), nil
}
