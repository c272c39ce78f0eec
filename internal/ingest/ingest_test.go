package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/xuri/excelize/v2"
)

func TestParseCSVFirstColumnIsEntityKey(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"employee_id,employee_name,department",
		"emp-1,Jordan Smith,Finance",
		"emp-2,Casey Jones,Legal",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() unexpected error: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].EntityKey != "emp-1" {
		t.Fatalf("EntityKey = %q, want emp-1", rows[0].EntityKey)
	}
	if rows[0].Values["employee_id"] != "emp-1" {
		t.Fatalf("employee_id = %q, want emp-1 (key column kept as value)", rows[0].Values["employee_id"])
	}
	if rows[0].Values["employee_name"] != "Jordan Smith" {
		t.Fatalf("employee_name = %q, want Jordan Smith", rows[0].Values["employee_name"])
	}
	if rows[1].Values["department"] != "Legal" {
		t.Fatalf("department = %q, want Legal", rows[1].Values["department"])
	}
}

func TestParseCSVEntityKeyHeader(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"employee_name,Entity_Key,department",
		"Jordan Smith,emp-1,Finance",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() unexpected error: %v", err)
	}

	if rows[0].EntityKey != "emp-1" {
		t.Fatalf("EntityKey = %q, want emp-1", rows[0].EntityKey)
	}
	if _, ok := rows[0].Values["entity_key"]; ok {
		t.Fatal("entity_key header should not appear as a field value")
	}
	if rows[0].Values["employee_name"] != "Jordan Smith" {
		t.Fatalf("employee_name = %q, want Jordan Smith", rows[0].Values["employee_name"])
	}
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"employee_id,employee_name",
		"emp-1,Jordan Smith",
		",",
		"emp-2,Casey Jones",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (blank row skipped)", len(rows))
	}
}

func TestParseCSVEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := ParseCSV(strings.NewReader(""))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestParseWorkbook(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]string{
		{"employee_id", "employee_name", "department"},
		{"emp-1", "Jordan Smith", "Finance"},
		{"", "", ""},
		{"emp-2", "Casey Jones", "Legal"},
	}
	for r, row := range cells {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName() error: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("SetCellValue() error: %v", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rows, err := ParseWorkbook(&buf)
	if err != nil {
		t.Fatalf("ParseWorkbook() unexpected error: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].EntityKey != "emp-1" {
		t.Fatalf("EntityKey = %q, want emp-1", rows[0].EntityKey)
	}
	if rows[1].Values["department"] != "Legal" {
		t.Fatalf("department = %q, want Legal", rows[1].Values["department"])
	}
}

func TestParseWorkbookInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := ParseWorkbook(strings.NewReader("not an xlsx file"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
