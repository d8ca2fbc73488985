package graphdb

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
)

// Relation is one directed edge of the global relation table.
type Relation struct {
	From string
	To   string
	Type string
}

func loadRelations(path string) ([]Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relation table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("relation table has no header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	fromCol, toCol, typeCol := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case bmg.RelationFromColumn:
			fromCol = i
		case bmg.RelationToColumn:
			toCol = i
		case bmg.RelationTypeColumn:
			typeCol = i
		}
	}
	if fromCol < 0 || toCol < 0 || typeCol < 0 {
		return nil, fmt.Errorf("relation table is missing one of %s, %s, %s",
			bmg.RelationFromColumn, bmg.RelationToColumn, bmg.RelationTypeColumn)
	}

	var relations []Relation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read relation table: %w", err)
		}
		if len(record) <= fromCol || len(record) <= toCol || len(record) <= typeCol {
			continue
		}
		relations = append(relations, Relation{
			From: strings.TrimSpace(record[fromCol]),
			To:   strings.TrimSpace(record[toCol]),
			Type: strings.TrimSpace(record[typeCol]),
		})
	}

	return relations, nil
}
