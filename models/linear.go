package models

import (
	"gonum.org/v1/gonum/mat"
)

// Linear is the fitted function of a LinearModel, detached from the options and solver it was fit
// with so any linear fit persists in the same form.
type Linear struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

func NewLinear(m LinearModel) *Linear {
	return &Linear{
		Intercept: m.Intercept(),
		Coef:      m.Coef(),
	}
}

func (l *Linear) Predict(x mat.Matrix) ([]float64, error) {
	if err := checkFeatures(x, len(l.Coef)); err != nil {
		return nil, err
	}
	m, _ := x.Dims()
	res := make([]float64, m)
	if len(l.Coef) == 0 || m == 0 {
		for i := range res {
			res[i] = l.Intercept
		}
		return res, nil
	}
	mat.NewVecDense(m, res).MulVec(x, mat.NewVecDense(len(l.Coef), l.Coef))
	for i := range res {
		res[i] += l.Intercept
	}
	return res, nil
}
