package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/xuri/excelize/v2"
)

const entityKeyHeader = "entity_key"

// Row is one parsed spreadsheet row: the natural entity key plus its field
// values keyed by normalized header name.
type Row struct {
	EntityKey string
	Values    map[string]string
}

// ParseWorkbook reads the first sheet of an xlsx workbook. The header row
// maps columns to field keys; the entity_key column, or the first column
// when no such header exists, supplies the entity key. Blank rows are
// skipped.
func ParseWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", domain.ErrValidation, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrValidation)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", domain.ErrValidation, sheets[0], err)
	}

	return rowsFromRecords(records)
}

// ParseCSV reads comma-separated rows with the same header contract as
// ParseWorkbook.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv: %v", domain.ErrValidation, err)
	}

	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: input has no header row", domain.ErrValidation)
	}

	headers := make([]string, len(records[0]))
	keyColumn := 0
	for i, h := range records[0] {
		headers[i] = domain.NormalizeKey(h)
		if headers[i] == entityKeyHeader {
			keyColumn = i
		}
	}
	if len(headers) == 0 || allBlank(headers) {
		return nil, fmt.Errorf("%w: input has no header row", domain.ErrValidation)
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if allBlank(record) {
			continue
		}

		row := Row{Values: make(map[string]string, len(headers))}
		for i, header := range headers {
			if header == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			if i == keyColumn {
				row.EntityKey = value
				if header != entityKeyHeader {
					row.Values[header] = value
				}
				continue
			}
			row.Values[header] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func allBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
