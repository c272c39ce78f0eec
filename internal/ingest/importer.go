package ingest

import (
	"context"
	"fmt"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"go.uber.org/zap"
)

// TypeLookup resolves the letter type whose schema the import targets.
type TypeLookup interface {
	GetByID(ctx context.Context, id string) (*domain.LetterType, error)
}

// RowWriter persists validated rows into the letter type's row table.
type RowWriter interface {
	UpsertRow(ctx context.Context, lt *domain.LetterType, entityKey string, values map[string]string) error
}

// RowError records why one row was skipped. Row numbers are 1-based data
// rows, header excluded.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	EntityKey string `json:"entityKey,omitempty"`
	Message   string `json:"message"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Importer validates parsed rows against a letter type's schema and writes
// them row by row. A bad row is reported and skipped; it never aborts the
// rest of the import.
type Importer struct {
	types  TypeLookup
	writer RowWriter
	logger *zap.Logger
}

func NewImporter(types TypeLookup, writer RowWriter, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		types:  types,
		writer: writer,
		logger: logger,
	}
}

func (im *Importer) Import(ctx context.Context, letterTypeID string, rows []Row) (*ImportResult, error) {
	lt, err := im.types.GetByID(ctx, letterTypeID)
	if err != nil {
		return nil, err
	}
	if !lt.IsActive {
		return nil, fmt.Errorf("%w: letter type %q is deactivated", domain.ErrValidation, lt.TypeKey)
	}

	known := make(map[string]*domain.FieldDefinition, len(lt.Fields))
	for i := range lt.Fields {
		known[domain.NormalizeKey(lt.Fields[i].FieldKey)] = &lt.Fields[i]
	}

	result := &ImportResult{}
	for i, row := range rows {
		rowNumber := i + 1

		if row.EntityKey == "" {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{
				RowNumber: rowNumber,
				Message:   "entity key is empty",
			})
			continue
		}

		values, rowErr := im.validateRow(lt, known, row)
		if rowErr != "" {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{
				RowNumber: rowNumber,
				EntityKey: row.EntityKey,
				Message:   rowErr,
			})
			continue
		}

		if err := im.writer.UpsertRow(ctx, lt, row.EntityKey, values); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{
				RowNumber: rowNumber,
				EntityKey: row.EntityKey,
				Message:   err.Error(),
			})
			continue
		}

		result.Imported++
	}

	im.logger.Info("import finished",
		zap.String("letterTypeId", letterTypeID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

// validateRow filters values to known fields and applies each field's rule.
// Unknown columns are ignored rather than fatal so a workbook can carry
// extra operator columns.
func (im *Importer) validateRow(lt *domain.LetterType, known map[string]*domain.FieldDefinition, row Row) (map[string]string, string) {
	values := make(map[string]string, len(row.Values))
	for key, value := range row.Values {
		field, ok := known[key]
		if !ok {
			continue
		}
		if err := field.CheckValue(value); err != nil {
			return nil, err.Error()
		}
		values[key] = value
	}

	if len(values) == 0 {
		return nil, fmt.Sprintf("no columns match fields of type %q", lt.TypeKey)
	}

	return values, ""
}
