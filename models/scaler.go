package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its training mean and divides by its population standard
// deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fit(x mat.Matrix) error {
	if x == nil {
		return ErrNoTrainingMatrix
	}
	m, n := x.Dims()
	if m == 0 {
		return ErrEmptyTrainingSet
	}
	s.Mean = make([]float64, n)
	s.Scale = make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		mat.Col(col, j, x)
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = 1
		if sd := math.Sqrt(variance); sd > 1e-12 {
			s.Scale[j] = sd
		}
	}
	return nil
}

func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	if err := checkFeatures(x, len(s.Mean)); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, out)
	return out, nil
}

func (s *StandardScaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
