package models

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

func checkDims(x, y mat.Matrix) error {
	m, _ := x.Dims()
	ym, _ := y.Dims()
	if m != ym {
		return fmt.Errorf("training data has %d rows and target has %d row, %w", m, ym, ErrTargetLenMismatch)
	}
	return nil
}

// fitInputs validates a training pair and returns x as a dense matrix with y flattened.
func fitInputs(x, y mat.Matrix) (*mat.Dense, []float64, error) {
	if x == nil {
		return nil, nil, ErrNoTrainingMatrix
	}
	if y == nil {
		return nil, nil, ErrNoTargetMatrix
	}
	if err := checkDims(x, y); err != nil {
		return nil, nil, err
	}
	m, _ := x.Dims()
	if m == 0 {
		return nil, nil, ErrEmptyTrainingSet
	}
	return mat.DenseCopyOf(x), mat.Col(nil, 0, y), nil
}

func checkFeatures(x mat.Matrix, n int) error {
	if x == nil {
		return ErrNoDesignMatrix
	}
	_, xn := x.Dims()
	if xn != n {
		return fmt.Errorf("got %d features in design matrix, but expected %d, %w", xn, n, ErrFeatureLenMismatch)
	}
	return nil
}

// SoftThreshold returns 0.0 if the value is less than or equal to the gamma input
func SoftThreshold(x, gamma float64) float64 {
	res := math.Max(0, math.Abs(x)-gamma)
	if math.Signbit(x) {
		return -res
	}
	return res
}

// quantile returns the q-quantile of v using linear interpolation between order statistics.
func quantile(v []float64, q float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	s := slices.Clone(v)
	slices.Sort(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}

// sampleRows returns a sorted random subset of round(frac*m) row indices, at least one.
func sampleRows(m int, frac float64, perm func(int) []int) []int {
	if frac >= 1 {
		rows := make([]int, m)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := max(int(math.Round(frac*float64(m))), 1)
	rows := perm(m)[:k]
	slices.Sort(rows)
	return rows
}
