// Package mat holds small conversions between row oriented slices and gonum matrices.
package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrColMismatch    = errors.New("column size mismatch")
	ErrRowOutOfBounds = errors.New("row is out of bounds")
)

// NewDenseFromArray builds a dense matrix from equal length rows. Empty input returns
// mat.ErrZeroLength.
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if m == 0 || n <= 0 {
		return nil, mat.ErrZeroLength
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// Column returns y as an n×1 matrix sharing its backing slice.
func Column(y []float64) (*mat.Dense, error) {
	if len(y) == 0 {
		return nil, mat.ErrZeroLength
	}
	return mat.NewDense(len(y), 1, y), nil
}

// RowsOf returns a copy of rows [start, end) of x.
func RowsOf(x mat.Matrix, start, end int) (*mat.Dense, error) {
	m, n := x.Dims()
	if start < 0 || end > m || start >= end {
		return nil, fmt.Errorf("rows [%d, %d) of %d, %w", start, end, m, ErrRowOutOfBounds)
	}
	out := mat.NewDense(end-start, n, nil)
	for i := start; i < end; i++ {
		out.SetRow(i-start, mat.Row(nil, i, x))
	}
	return out, nil
}
