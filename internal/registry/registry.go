package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SchemaProvisioner keeps a letter type's physical row table aligned with
// its field definitions.
type SchemaProvisioner interface {
	EnsureSchema(ctx context.Context, lt *domain.LetterType) error
}

// Registry owns the letter type catalog. A new type is created inactive,
// its row table provisioned, then activated; a crash between those steps
// leaves an inactive record that Reconcile can repair.
type Registry struct {
	types       repository.LetterTypeRepository
	provisioner SchemaProvisioner
	logger      *zap.Logger
}

func NewRegistry(types repository.LetterTypeRepository, provisioner SchemaProvisioner, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		types:       types,
		provisioner: provisioner,
		logger:      logger,
	}
}

// DefineInput describes a new letter type and its initial fields.
type DefineInput struct {
	TypeKey     string
	DisplayName string
	Description string
	Fields      []FieldInput
}

// FieldInput describes one field definition.
type FieldInput struct {
	FieldKey     string
	DisplayName  string
	DisplayOrder int
	IsRequired   bool
	DefaultValue string
	MinLength    int
	MaxLength    int
	Pattern      string
}

func (in FieldInput) toDomain(letterTypeID string, order int) domain.FieldDefinition {
	displayOrder := in.DisplayOrder
	if displayOrder == 0 {
		displayOrder = order
	}
	return domain.FieldDefinition{
		ID:           uuid.NewString(),
		LetterTypeID: letterTypeID,
		FieldKey:     domain.NormalizeKey(in.FieldKey),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		DisplayOrder: displayOrder,
		IsRequired:   in.IsRequired,
		DefaultValue: in.DefaultValue,
		MinLength:    in.MinLength,
		MaxLength:    in.MaxLength,
		Pattern:      in.Pattern,
	}
}

// Define creates a new letter type with its fields and provisions its row
// table. The type becomes visible to lookups only after provisioning
// succeeds.
func (r *Registry) Define(ctx context.Context, in DefineInput) (*domain.LetterType, error) {
	if err := domain.ValidateTypeKey(in.TypeKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		return nil, fmt.Errorf("%w: displayName is required", domain.ErrValidation)
	}
	if len(in.Fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", domain.ErrValidation)
	}

	typeID := uuid.NewString()
	fields := make([]domain.FieldDefinition, 0, len(in.Fields))
	for i, f := range in.Fields {
		fields = append(fields, f.toDomain(typeID, i+1))
	}
	if err := domain.ValidateFieldSet(fields); err != nil {
		return nil, err
	}

	lt := &domain.LetterType{
		ID:          typeID,
		TypeKey:     domain.NormalizeKey(in.TypeKey),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Description: strings.TrimSpace(in.Description),
		IsActive:    false,
		Fields:      fields,
	}

	if err := r.types.Create(ctx, lt); err != nil {
		return nil, err
	}

	if err := r.provisioner.EnsureSchema(ctx, lt); err != nil {
		r.logger.Error("letter type provisioning failed, left inactive for reconcile",
			zap.String("letterTypeId", lt.ID),
			zap.String("typeKey", lt.TypeKey),
			zap.Error(err),
		)
		return nil, err
	}

	if err := r.types.SetActive(ctx, lt.ID, true); err != nil {
		return nil, err
	}
	lt.IsActive = true

	r.logger.Info("letter type defined",
		zap.String("letterTypeId", lt.ID),
		zap.String("typeKey", lt.TypeKey),
		zap.Int("fields", len(lt.Fields)),
	)

	return lt, nil
}

// AddField appends one field to an existing type and provisions its column.
// Existing fields and columns are never altered or removed.
func (r *Registry) AddField(ctx context.Context, letterTypeID string, in FieldInput) (*domain.LetterType, error) {
	lt, err := r.types.GetByID(ctx, letterTypeID)
	if err != nil {
		return nil, err
	}

	field := in.toDomain(lt.ID, len(lt.Fields)+1)
	if err := field.Validate(); err != nil {
		return nil, err
	}
	for i := range lt.Fields {
		if domain.NormalizeKey(lt.Fields[i].FieldKey) == field.FieldKey {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateFieldKey, in.FieldKey)
		}
	}

	if err := r.types.AddField(ctx, &field); err != nil {
		return nil, err
	}
	lt.Fields = append(lt.Fields, field)

	if err := r.provisioner.EnsureSchema(ctx, lt); err != nil {
		return nil, err
	}

	r.logger.Info("field added to letter type",
		zap.String("letterTypeId", lt.ID),
		zap.String("fieldKey", field.FieldKey),
	)

	return lt, nil
}

// Deactivate hides the type from lookups and new batches. Historical data
// and the row table stay untouched.
func (r *Registry) Deactivate(ctx context.Context, letterTypeID string) error {
	if err := r.types.SetActive(ctx, letterTypeID, false); err != nil {
		return err
	}
	r.logger.Info("letter type deactivated", zap.String("letterTypeId", letterTypeID))
	return nil
}

func (r *Registry) GetByID(ctx context.Context, id string) (*domain.LetterType, error) {
	return r.types.GetByID(ctx, id)
}

func (r *Registry) GetByKey(ctx context.Context, typeKey string) (*domain.LetterType, error) {
	return r.types.GetByKey(ctx, typeKey)
}

func (r *Registry) List(ctx context.Context) ([]domain.LetterType, error) {
	return r.types.List(ctx)
}

// Reconcile re-runs provisioning for a type and activates it. Repair path
// for types left inactive by a crash between create and activate.
func (r *Registry) Reconcile(ctx context.Context, letterTypeID string) (*domain.LetterType, error) {
	lt, err := r.types.GetByID(ctx, letterTypeID)
	if err != nil {
		return nil, err
	}

	if err := r.provisioner.EnsureSchema(ctx, lt); err != nil {
		return nil, err
	}

	if !lt.IsActive {
		if err := r.types.SetActive(ctx, lt.ID, true); err != nil {
			return nil, err
		}
		lt.IsActive = true
	}

	r.logger.Info("letter type reconciled", zap.String("letterTypeId", lt.ID))
	return lt, nil
}
