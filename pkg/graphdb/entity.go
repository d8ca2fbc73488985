package graphdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
)

// EntityTable is one entity type's reference table. CanonicalIDs preserves
// table order with duplicates removed; that order defines the column order
// of every aligned feature matrix for the type.
type EntityTable struct {
	Type         string
	Columns      []string
	CanonicalIDs []string

	colIndex map[string]int
	rows     [][]string
}

// HasColumn reports whether the table carries the named identifier column.
func (t *EntityTable) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// Len returns the number of rows in the table.
func (t *EntityTable) Len() int {
	return len(t.rows)
}

// RawToCanonical builds the raw-identifier lookup for one identifier column.
// Cells are exploded on ";" so every synonym resolves to the row's canonical
// ID. A synonym appearing in several rows maps to all of them, in table
// order, deduplicated per pair.
func (t *EntityTable) RawToCanonical(idType string) (map[string][]string, error) {
	idCol, ok := t.colIndex[idType]
	if !ok {
		return nil, fmt.Errorf("column %s not present in %s table", idType, t.Type)
	}
	canonCol := t.colIndex[bmg.CanonicalIDColumn]

	lookup := make(map[string][]string)
	for _, row := range t.rows {
		canonical := strings.TrimSpace(row[canonCol])
		if canonical == "" {
			continue
		}
		for _, raw := range strings.Split(row[idCol], ";") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if containsString(lookup[raw], canonical) {
				continue
			}
			lookup[raw] = append(lookup[raw], canonical)
		}
	}
	return lookup, nil
}

func loadEntityTable(path, entityType string) (*EntityTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMappingFileNotFound, path)
		}
		return nil, fmt.Errorf("open entity table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("entity table %s has no header: %w", entityType, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	table := &EntityTable{
		Type:     entityType,
		Columns:  make([]string, len(header)),
		colIndex: make(map[string]int, len(header)),
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		table.Columns[i] = name
		table.colIndex[name] = i
	}

	canonCol, ok := table.colIndex[bmg.CanonicalIDColumn]
	if !ok {
		return nil, fmt.Errorf("entity table %s is missing the %s column", entityType, bmg.CanonicalIDColumn)
	}

	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entity table %s: %w", entityType, err)
		}

		row := make([]string, len(header))
		copy(row, record)
		table.rows = append(table.rows, row)

		canonical := strings.TrimSpace(row[canonCol])
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		table.CanonicalIDs = append(table.CanonicalIDs, canonical)
	}

	if len(table.CanonicalIDs) == 0 {
		return nil, fmt.Errorf("entity table %s carries no canonical ids", entityType)
	}

	return table, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
