package matrix

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewAligned_ZeroFilled(t *testing.T) {
	a := NewAligned([]string{"S1", "S2"}, []string{"C1", "C2", "C3"})

	r, c := a.Data.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected 2x3, got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.Data.At(i, j) != 0 {
				t.Fatalf("expected zero at (%d,%d), got %v", i, j, a.Data.At(i, j))
			}
		}
	}
}

func TestZScoreColumns(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
	})

	ZScoreColumns(m)

	// First column: mean 2, population std sqrt(2/3).
	std := math.Sqrt(2.0 / 3.0)
	want := []float64{-1 / std, 0, 1 / std}
	for i, w := range want {
		if got := m.At(i, 0); math.Abs(got-w) > 1e-12 {
			t.Fatalf("expected %v at row %d, got %v", w, i, got)
		}
	}
	// Constant column is centered, not scaled.
	for i := 0; i < 3; i++ {
		if got := m.At(i, 1); got != 0 {
			t.Fatalf("expected centered constant column, got %v", got)
		}
	}
}

func TestZScoreColumns_MeanZeroAfter(t *testing.T) {
	m := mat.NewDense(4, 1, []float64{10, 20, 30, 40})

	ZScoreColumns(m)

	sum := 0.0
	for i := 0; i < 4; i++ {
		sum += m.At(i, 0)
	}
	if math.Abs(sum) > 1e-12 {
		t.Fatalf("expected zero mean, got sum %v", sum)
	}
}

func TestHStack(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 1, []float64{5, 6})

	out, err := HStack([]*mat.Dense{a, b})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	r, c := out.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected 2x3, got %dx%d", r, c)
	}
	if out.At(0, 2) != 5 || out.At(1, 2) != 6 {
		t.Fatalf("unexpected stacked values: %v %v", out.At(0, 2), out.At(1, 2))
	}
}

func TestHStack_RowMismatch(t *testing.T) {
	a := mat.NewDense(2, 1, []float64{1, 2})
	b := mat.NewDense(3, 1, []float64{1, 2, 3})

	if _, err := HStack([]*mat.Dense{a, b}); err == nil {
		t.Fatalf("expected row mismatch error")
	}
}

func TestNPYRoundTrip_Matrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x", "m.npy")
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4.5, 5, 6})

	if err := WriteNPY(path, m); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := ReadNPY(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	r, c := got.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected 2x3, got %dx%d", r, c)
	}
	if got.At(1, 0) != 4.5 {
		t.Fatalf("expected 4.5, got %v", got.At(1, 0))
	}
}

func TestNPYRoundTrip_Vector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "y.npy")
	v := []float64{0, 1, 1, 0}

	if err := WriteVectorNPY(path, v); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := ReadVectorNPY(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 4 || got[1] != 1 || got[3] != 0 {
		t.Fatalf("unexpected vector: %v", got)
	}
}
