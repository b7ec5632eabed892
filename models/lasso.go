package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultLambda     = 1.0
	DefaultIterations = 1000
	DefaultTolerance  = 1e-4
)

var (
	ErrNegativeLambda     = errors.New("negative lambda")
	ErrNegativeIterations = errors.New("negative iterations")
	ErrNegativeTolerance  = errors.New("negative tolerance")
)

// LassoOptions represents input options to run the Lasso Regression
type LassoOptions struct {
	// Lambda is the L1 multiplier in target units. 0 converges to ordinary least squares.
	Lambda float64 `json:"lambda"`

	// Iterations is the maximum number of passes over all coefficients.
	Iterations int `json:"iterations"`

	// Tolerance is the largest coefficient change, relative to the largest coefficient, at which
	// the descent stops.
	Tolerance float64 `json:"tolerance"`

	FitIntercept bool `json:"fit_intercept"`
}

func NewDefaultLassoOptions() *LassoOptions {
	return &LassoOptions{
		Lambda:       DefaultLambda,
		Iterations:   DefaultIterations,
		Tolerance:    DefaultTolerance,
		FitIntercept: true,
	}
}

func (l *LassoOptions) Validate() (*LassoOptions, error) {
	if l == nil {
		return NewDefaultLassoOptions(), nil
	}
	if l.Lambda < 0 {
		return nil, ErrNegativeLambda
	}
	if l.Iterations < 0 {
		return nil, ErrNegativeIterations
	}
	if l.Tolerance < 0 {
		return nil, ErrNegativeTolerance
	}
	return l, nil
}

// LassoRegression computes the lasso regression using coordinate descent on mean centered
// columns. lambda = 0 converges to OLS.
type LassoRegression struct {
	opt       *LassoOptions
	coef      []float64
	intercept float64
}

func NewLassoRegression(opt *LassoOptions) (*LassoRegression, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &LassoRegression{
		opt: opt,
	}, nil
}

func (l *LassoRegression) Fit(x, y mat.Matrix) error {
	if l.opt == nil {
		return ErrNoOptions
	}
	xd, target, err := fitInputs(x, y)
	if err != nil {
		return err
	}
	m, n := xd.Dims()

	cols := make([][]float64, n)
	means := make([]float64, n)
	for j := range cols {
		cols[j] = mat.Col(nil, j, xd)
		if l.opt.FitIntercept {
			means[j] = stat.Mean(cols[j], nil)
			floats.AddConst(-means[j], cols[j])
		}
	}
	var yMean float64
	residual := make([]float64, m)
	copy(residual, target)
	if l.opt.FitIntercept {
		yMean = stat.Mean(residual, nil)
		floats.AddConst(-yMean, residual)
	}

	// (1/m) * ||x_j||^2 per column
	norms := make([]float64, n)
	for j, c := range cols {
		norms[j] = floats.Dot(c, c) / float64(m)
	}

	coef := make([]float64, n)
	for i := 0; i < l.opt.Iterations; i++ {
		var maxCoef, maxUpdate float64
		for j, c := range cols {
			if norms[j] == 0 {
				continue
			}
			rho := floats.Dot(c, residual)/float64(m) + norms[j]*coef[j]
			next := SoftThreshold(rho, l.opt.Lambda) / norms[j]
			if delta := next - coef[j]; delta != 0 {
				floats.AddScaled(residual, -delta, c)
				maxUpdate = math.Max(maxUpdate, math.Abs(delta))
			}
			coef[j] = next
			maxCoef = math.Max(maxCoef, math.Abs(next))
		}
		if maxUpdate <= l.opt.Tolerance*maxCoef {
			break
		}
	}

	l.coef = coef
	l.intercept = 0
	if l.opt.FitIntercept {
		l.intercept = yMean - floats.Dot(means, coef)
	}
	return nil
}

func (l *LassoRegression) Predict(x mat.Matrix) ([]float64, error) {
	if l.opt == nil {
		return nil, ErrNoOptions
	}
	if l.coef == nil {
		return nil, ErrNotFitted
	}
	return NewLinear(l).Predict(x)
}

func (l *LassoRegression) Intercept() float64 {
	return l.intercept
}

func (l *LassoRegression) Coef() []float64 {
	c := make([]float64, len(l.coef))
	copy(c, l.coef)
	return c
}

type lassoJSON struct {
	Options   *LassoOptions `json:"options"`
	Intercept float64       `json:"intercept"`
	Coef      []float64     `json:"coef"`
}

func (l *LassoRegression) MarshalJSON() ([]byte, error) {
	return json.Marshal(lassoJSON{l.opt, l.intercept, l.coef})
}

func (l *LassoRegression) UnmarshalJSON(data []byte) error {
	var v lassoJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	opt, err := v.Options.Validate()
	if err != nil {
		return fmt.Errorf("invalid lasso options, %w", err)
	}
	l.opt = opt
	l.intercept = v.Intercept
	l.coef = v.Coef
	return nil
}
