package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a wide-format sample table read from a delimited text file: the
// first column holds sample identifiers, every further column a raw entity
// identifier. All values are kept as strings; numeric interpretation is left
// to the consumer.
type Table struct {
	SampleColumn string
	Columns      []string
	Samples      []string
	Rows         [][]string
}

// TableDelimiter returns the field delimiter implied by the file extension.
// Tab for .tsv and .txt files, comma otherwise.
func TableDelimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		return '\t'
	default:
		return ','
	}
}

// ReadTable reads the whole file into a Table. The header row is required;
// data rows may be absent. Short rows are padded with empty strings, long
// rows truncated to the header width.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = TableDelimiter(path)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var table *Table
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sample table %s: %w", filepath.Base(path), err)
		}
		if isEmptyRecord(record) {
			continue
		}

		if table == nil {
			record[0] = strings.TrimPrefix(record[0], "\uFEFF")
			if strings.TrimSpace(record[0]) == "" {
				return nil, fmt.Errorf("sample table %s has no sample column", filepath.Base(path))
			}
			table = &Table{
				SampleColumn: strings.TrimSpace(record[0]),
				Columns:      trimAll(record[1:]),
			}
			continue
		}

		width := len(table.Columns)
		row := make([]string, width)
		for i := 0; i < width && i+1 < len(record); i++ {
			row[i] = strings.TrimSpace(record[i+1])
		}
		table.Samples = append(table.Samples, strings.TrimSpace(record[0]))
		table.Rows = append(table.Rows, row)
	}

	if table == nil {
		return nil, fmt.Errorf("sample table %s is empty", filepath.Base(path))
	}

	return table, nil
}

// ReadSampleColumn reads the distinct first-column values of a file in file
// order, skipping the header row and empty cells.
func ReadSampleColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = TableDelimiter(path)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	seen := make(map[string]struct{})
	var ids []string
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sample column %s: %w", filepath.Base(path), err)
		}
		if isEmptyRecord(record) {
			continue
		}
		if header {
			header = false
			continue
		}
		id := strings.TrimSpace(record[0])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if header {
		return nil, fmt.Errorf("sample table %s is empty", filepath.Base(path))
	}

	return ids, nil
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
