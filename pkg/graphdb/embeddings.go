package graphdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
)

// EmbeddingIndex holds the precomputed name embeddings of one entity type.
// Row i of Vectors belongs to IDs[i] / Names[i]; row order follows the
// shipped index file and is the deterministic tie-break for equal scores.
type EmbeddingIndex struct {
	Type    string
	IDs     []string
	Names   []string
	Vectors *mat.Dense
}

// Candidate is one ranked hit of a similarity search.
type Candidate struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Dim returns the embedding dimensionality of the index.
func (e *EmbeddingIndex) Dim() int {
	_, c := e.Vectors.Dims()
	return c
}

// TopK ranks all entities of the index by cosine similarity against query
// and returns the best k. Ties keep index order. The query length must
// match the index dimensionality.
func (e *EmbeddingIndex) TopK(query []float64, k int) ([]Candidate, error) {
	rows, cols := e.Vectors.Dims()
	if len(query) != cols {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), cols)
	}
	if k <= 0 {
		return nil, nil
	}

	queryNorm := floats.Norm(query, 2)
	scores := make([]float64, rows)
	if queryNorm > 0 {
		row := make([]float64, cols)
		for i := 0; i < rows; i++ {
			mat.Row(row, i, e.Vectors)
			rowNorm := floats.Norm(row, 2)
			if rowNorm == 0 {
				continue
			}
			scores[i] = floats.Dot(query, row) / (queryNorm * rowNorm)
		}
	}

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > rows {
		k = rows
	}
	candidates := make([]Candidate, 0, k)
	for _, idx := range order[:k] {
		candidates = append(candidates, Candidate{
			ID:    e.IDs[idx],
			Name:  e.Names[idx],
			Score: scores[idx],
		})
	}
	return candidates, nil
}

func loadEmbeddingIndex(matrixPath, indexPath, entityType string) (*EmbeddingIndex, error) {
	vectors, err := matrix.ReadNPY(matrixPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrEmbeddingsNotFound, matrixPath)
		}
		return nil, fmt.Errorf("load embedding matrix for %s: %w", entityType, err)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrEmbeddingsNotFound, indexPath)
		}
		return nil, fmt.Errorf("open embedding index for %s: %w", entityType, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("embedding index for %s has no header: %w", entityType, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	idCol, nameCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case bmg.CanonicalIDColumn:
			idCol = i
		case "Name":
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("embedding index for %s is missing the %s column", entityType, bmg.CanonicalIDColumn)
	}

	index := &EmbeddingIndex{Type: entityType, Vectors: vectors}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read embedding index for %s: %w", entityType, err)
		}
		if len(record) <= idCol {
			continue
		}
		index.IDs = append(index.IDs, strings.TrimSpace(record[idCol]))
		name := ""
		if nameCol >= 0 && len(record) > nameCol {
			name = strings.TrimSpace(record[nameCol])
		}
		index.Names = append(index.Names, name)
	}

	rows, _ := vectors.Dims()
	if rows != len(index.IDs) {
		return nil, fmt.Errorf("embedding index for %s lists %d entities but the matrix has %d rows",
			entityType, len(index.IDs), rows)
	}

	return index, nil
}
