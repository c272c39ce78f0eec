package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TypeLookup resolves the letter type whose fields drive generation.
type TypeLookup interface {
	GetByID(ctx context.Context, id string) (*domain.LetterType, error)
}

// RowReader loads the stored field values for one entity.
type RowReader interface {
	GetRow(ctx context.Context, lt *domain.LetterType, entityKey string) (map[string]string, error)
}

// Metrics is the slice of observability the pipeline reports to.
type Metrics interface {
	IncDocumentRendered(result string)
}

// GenerateInput describes one document generation request. ExtraFields
// override stored row values, which override field defaults.
type GenerateInput struct {
	LetterTypeID string
	EntityKey    string
	TemplateID   string
	SignatureID  string
	ExtraFields  map[string]string
}

// Pipeline resolves field values, renders the document, and persists the
// result for audit and later attachment.
type Pipeline struct {
	types     TypeLookup
	rows      RowReader
	renderer  Renderer
	documents repository.DocumentRepository
	metrics   Metrics
	logger    *zap.Logger
}

func NewPipeline(
	types TypeLookup,
	rows RowReader,
	renderer Renderer,
	documents repository.DocumentRepository,
	metrics Metrics,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		types:     types,
		rows:      rows,
		renderer:  renderer,
		documents: documents,
		metrics:   metrics,
		logger:    logger,
	}
}

func (p *Pipeline) Generate(ctx context.Context, in GenerateInput) (*domain.GeneratedDocument, error) {
	if strings.TrimSpace(in.TemplateID) == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.EntityKey) == "" {
		return nil, fmt.Errorf("%w: entity key is required", domain.ErrValidation)
	}

	lt, err := p.types.GetByID(ctx, in.LetterTypeID)
	if err != nil {
		return nil, err
	}

	fields, err := p.resolveFields(ctx, lt, in)
	if err != nil {
		return nil, err
	}

	result, err := p.renderer.Render(ctx, RenderRequest{
		TemplateID:  in.TemplateID,
		SignatureID: in.SignatureID,
		Fields:      fields,
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncDocumentRendered("failure")
		}
		return nil, err
	}

	doc := &domain.GeneratedDocument{
		ID:           uuid.NewString(),
		LetterTypeID: lt.ID,
		EntityKey:    strings.TrimSpace(in.EntityKey),
		TemplateID:   in.TemplateID,
		SizeBytes:    result.Size,
		Content:      result.Content,
		CreatedAt:    time.Now().UTC(),
	}
	if sig := strings.TrimSpace(in.SignatureID); sig != "" {
		doc.SignatureID = &sig
	}

	if err := p.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.IncDocumentRendered("success")
	}
	p.logger.Info("document generated",
		zap.String("documentId", doc.ID),
		zap.String("letterTypeId", lt.ID),
		zap.String("entityKey", doc.EntityKey),
		zap.Int64("sizeBytes", doc.SizeBytes),
	)

	return doc, nil
}

// resolveFields merges values in precedence order and checks required
// fields after the merge. The stored row is optional: a caller may supply
// every value inline.
func (p *Pipeline) resolveFields(ctx context.Context, lt *domain.LetterType, in GenerateInput) ([]RenderField, error) {
	row, err := p.rows.GetRow(ctx, lt, in.EntityKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		row = nil
	}

	extra := make(map[string]string, len(in.ExtraFields))
	for key, value := range in.ExtraFields {
		extra[domain.NormalizeKey(key)] = value
	}

	fields := make([]RenderField, 0, len(lt.Fields))
	for i := range lt.Fields {
		field := &lt.Fields[i]
		key := domain.NormalizeKey(field.FieldKey)

		value, ok := extra[key]
		if !ok || value == "" {
			if stored, found := row[key]; found && stored != "" {
				value = stored
			} else {
				value = field.DefaultValue
			}
		}

		if err := field.CheckValue(value); err != nil {
			return nil, err
		}
		if field.IsRequired && strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: %q", domain.ErrMissingRequiredField, field.FieldKey)
		}

		fields = append(fields, RenderField{
			Key:   key,
			Label: field.DisplayName,
			Value: value,
		})
	}

	return fields, nil
}
