package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/burakkarakan/letter-engine/internal/domain"
)

type fakeLookup struct {
	lt  *domain.LetterType
	err error
}

func (f *fakeLookup) GetByID(_ context.Context, _ string) (*domain.LetterType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lt, nil
}

type fakeWriter struct {
	upserts map[string]map[string]string
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{upserts: make(map[string]map[string]string)}
}

func (f *fakeWriter) UpsertRow(_ context.Context, _ *domain.LetterType, entityKey string, values map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.upserts[entityKey] = values
	return nil
}

func importType() *domain.LetterType {
	return &domain.LetterType{
		ID:       "lt-1",
		TypeKey:  "warning_letter",
		IsActive: true,
		Fields: []domain.FieldDefinition{
			{FieldKey: "employee_name", MinLength: 2},
			{FieldKey: "department"},
		},
	}
}

func TestImporterImport(t *testing.T) {
	t.Parallel()

	writer := newFakeWriter()
	im := NewImporter(&fakeLookup{lt: importType()}, writer, nil)

	rows := []Row{
		{EntityKey: "emp-1", Values: map[string]string{"employee_name": "Jordan Smith", "department": "Finance"}},
		{EntityKey: "emp-2", Values: map[string]string{"employee_name": "Casey Jones", "extra_column": "ignored"}},
	}

	result, err := im.Import(context.Background(), "lt-1", rows)
	if err != nil {
		t.Fatalf("Import() unexpected error: %v", err)
	}

	if result.Imported != 2 {
		t.Fatalf("Imported = %d, want 2", result.Imported)
	}
	if result.Skipped != 0 {
		t.Fatalf("Skipped = %d, want 0", result.Skipped)
	}
	if _, ok := writer.upserts["emp-2"]["extra_column"]; ok {
		t.Fatal("unknown column should be dropped, not persisted")
	}
}

func TestImporterSkipsBadRows(t *testing.T) {
	t.Parallel()

	writer := newFakeWriter()
	im := NewImporter(&fakeLookup{lt: importType()}, writer, nil)

	rows := []Row{
		{EntityKey: "", Values: map[string]string{"employee_name": "No Key"}},
		{EntityKey: "emp-1", Values: map[string]string{"employee_name": "X"}},
		{EntityKey: "emp-2", Values: map[string]string{"unrelated": "nothing matches"}},
		{EntityKey: "emp-3", Values: map[string]string{"employee_name": "Jordan Smith"}},
	}

	result, err := im.Import(context.Background(), "lt-1", rows)
	if err != nil {
		t.Fatalf("Import() unexpected error: %v", err)
	}

	if result.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", result.Imported)
	}
	if result.Skipped != 3 {
		t.Fatalf("Skipped = %d, want 3", result.Skipped)
	}
	if len(result.Errors) != 3 {
		t.Fatalf("Errors = %d, want 3", len(result.Errors))
	}
	if result.Errors[1].RowNumber != 2 {
		t.Fatalf("Errors[1].RowNumber = %d, want 2", result.Errors[1].RowNumber)
	}
	if _, ok := writer.upserts["emp-3"]; !ok {
		t.Fatal("valid row emp-3 should have been written")
	}
}

func TestImporterDeactivatedType(t *testing.T) {
	t.Parallel()

	lt := importType()
	lt.IsActive = false
	im := NewImporter(&fakeLookup{lt: lt}, newFakeWriter(), nil)

	_, err := im.Import(context.Background(), "lt-1", []Row{{EntityKey: "emp-1"}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestImporterUnknownType(t *testing.T) {
	t.Parallel()

	im := NewImporter(&fakeLookup{err: domain.ErrNotFound}, newFakeWriter(), nil)

	_, err := im.Import(context.Background(), "missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestImporterWriterFailureReported(t *testing.T) {
	t.Parallel()

	writer := newFakeWriter()
	writer.err = errors.New("connection refused")
	im := NewImporter(&fakeLookup{lt: importType()}, writer, nil)

	result, err := im.Import(context.Background(), "lt-1", []Row{
		{EntityKey: "emp-1", Values: map[string]string{"employee_name": "Jordan Smith"}},
	})
	if err != nil {
		t.Fatalf("Import() unexpected error: %v", err)
	}

	if result.Imported != 0 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 0 imported 1 skipped", result)
	}
}
