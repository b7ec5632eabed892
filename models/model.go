// Package models is a collection of regression learners used by the forecaster: a QR based
// ordinary least squares fit, a coordinate descent lasso and tree ensembles (random forest, gradient boosting and a second
// order regularized gradient boosted tree variant) plus a standard scaler. Every fitted model
// serializes to JSON so it can be persisted alongside its feature schema.
package models

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type Model interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) ([]float64, error)
}

// LinearModel is a Model exposing its fitted coefficients.
type LinearModel interface {
	Model
	Intercept() float64
	Coef() []float64
}

// Explainer is a Model reporting the relative importance of each input feature.
type Explainer interface {
	Model
	Importances() []float64
}

// Score returns the coefficient of determination of the model predictions on x against y.
func Score(model Model, x, y mat.Matrix) (float64, error) {
	if x == nil {
		return 0.0, ErrNoDesignMatrix
	}
	if y == nil {
		return 0.0, ErrNoTargetMatrix
	}
	if err := checkDims(x, y); err != nil {
		return 0.0, err
	}
	res, err := model.Predict(x)
	if err != nil {
		return 0.0, err
	}
	ySlice := mat.Col(nil, 0, y)
	return stat.RSquaredFrom(res, ySlice, nil), nil
}
