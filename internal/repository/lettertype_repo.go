package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"gorm.io/gorm"
)

type LetterTypeRepository interface {
	Create(ctx context.Context, lt *domain.LetterType) error
	GetByID(ctx context.Context, id string) (*domain.LetterType, error)
	GetByKey(ctx context.Context, typeKey string) (*domain.LetterType, error)
	ExistsByKey(ctx context.Context, typeKey string) (bool, error)
	List(ctx context.Context) ([]domain.LetterType, error)
	AddField(ctx context.Context, field *domain.FieldDefinition) error
	SetActive(ctx context.Context, id string, active bool) error
}

type GormLetterTypeRepo struct {
	db *gorm.DB
}

func NewGormLetterTypeRepo(db *gorm.DB) *GormLetterTypeRepo {
	return &GormLetterTypeRepo{db: db}
}

func (r *GormLetterTypeRepo) Create(ctx context.Context, lt *domain.LetterType) error {
	model := letterTypeModelFromDomain(lt)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	if lt != nil {
		*lt = *letterTypeModelToDomain(model)
	}
	return nil
}

func (r *GormLetterTypeRepo) GetByID(ctx context.Context, id string) (*domain.LetterType, error) {
	var model LetterTypeModel
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, created_at ASC")
		}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return letterTypeModelToDomain(&model), nil
}

// GetByKey resolves active letter types only; historical jobs and documents
// go through GetByID, which still resolves deactivated types.
func (r *GormLetterTypeRepo) GetByKey(ctx context.Context, typeKey string) (*domain.LetterType, error) {
	var model LetterTypeModel
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, created_at ASC")
		}).
		Where("LOWER(type_key) = ? AND is_active", strings.ToLower(strings.TrimSpace(typeKey))).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return letterTypeModelToDomain(&model), nil
}

func (r *GormLetterTypeRepo) ExistsByKey(ctx context.Context, typeKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&LetterTypeModel{}).
		Where("LOWER(type_key) = ?", strings.ToLower(strings.TrimSpace(typeKey))).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormLetterTypeRepo) List(ctx context.Context) ([]domain.LetterType, error) {
	var models []LetterTypeModel
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, created_at ASC")
		}).
		Where("is_active").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	types := make([]domain.LetterType, 0, len(models))
	for i := range models {
		types = append(types, *letterTypeModelToDomain(&models[i]))
	}
	return types, nil
}

func (r *GormLetterTypeRepo) AddField(ctx context.Context, field *domain.FieldDefinition) error {
	model := fieldModelFromDomain(field)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateFieldKey
		}
		return err
	}
	if field != nil {
		*field = *fieldModelToDomain(model)
	}
	return nil
}

func (r *GormLetterTypeRepo) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&LetterTypeModel{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
