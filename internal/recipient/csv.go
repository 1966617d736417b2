package recipient

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Header aliases accepted on import, checked case-insensitively.
// The Hebrew aliases match spreadsheets produced by the template
// export of older tooling.
var (
	nameAliases  = []string{"name", "שם"}
	phoneAliases = []string{"phone", "טלפון"}
)

// ParseCSV reads a tabular dataset with a header row and maps it to
// import rows. Columns it cannot map are ignored; a file without a
// recognizable name and phone column is rejected.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	nameIdx, phoneIdx := -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if nameIdx < 0 && matchesAlias(col, nameAliases) {
			nameIdx = i
		}
		if phoneIdx < 0 && matchesAlias(col, phoneAliases) {
			phoneIdx = i
		}
	}
	if nameIdx < 0 || phoneIdx < 0 {
		return nil, fmt.Errorf("no name/phone columns found in header %v", header)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := Row{}
		if nameIdx < len(record) {
			row.Name = record[nameIdx]
		}
		if phoneIdx < len(record) {
			row.Phone = record[phoneIdx]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func matchesAlias(col string, aliases []string) bool {
	for _, a := range aliases {
		if col == a {
			return true
		}
	}
	return false
}

// WriteTemplateCSV produces the import template: a name,phone header
// and two example rows.
func WriteTemplateCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	records := [][]string{
		{"name", "phone"},
		{"Israel Israeli", "0521234567"},
		{"Example Person", "0500000000"},
	}
	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write template row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
