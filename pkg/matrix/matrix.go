// Package matrix holds the dense numeric representation shared by the
// resolvers and the finalizer, plus the .npy artifact encoding.
package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Aligned pairs a dense value matrix with its row and column identity. Rows
// are sample identifiers, columns canonical entity identifiers. Every
// resolver output is aligned the same way so matrices of one entity type are
// shape-compatible across jobs.
type Aligned struct {
	Samples []string
	Columns []string
	Data    *mat.Dense
}

// NewAligned creates a zero-filled matrix of len(samples) x len(columns).
// Both dimensions must be non-zero.
func NewAligned(samples, columns []string) *Aligned {
	return &Aligned{
		Samples: samples,
		Columns: columns,
		Data:    mat.NewDense(len(samples), len(columns), nil),
	}
}

// ZScoreColumns standardizes every column of m in place to zero mean and
// unit variance, using the population standard deviation. Constant columns
// are centered only.
func ZScoreColumns(m *mat.Dense) {
	rows, cols := m.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean := stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := 0; i < rows; i++ {
			m.Set(i, j, (col[i]-mean)/std)
		}
	}
}

// HStack concatenates the blocks left to right. All blocks must share the
// same row count.
func HStack(blocks []*mat.Dense) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no blocks to concatenate")
	}

	rows, _ := blocks[0].Dims()
	total := 0
	for _, b := range blocks {
		r, c := b.Dims()
		if r != rows {
			return nil, fmt.Errorf("row count mismatch: %d vs %d", rows, r)
		}
		total += c
	}

	out := mat.NewDense(rows, total, nil)
	offset := 0
	for _, b := range blocks {
		_, c := b.Dims()
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}
	return out, nil
}
