package models

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type Loss string

const (
	LossSquared Loss = "squared_error"
	LossHuber   Loss = "huber"
)

type GradientBoostingOptions struct {
	Rounds         int     `json:"rounds"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Subsample      float64 `json:"subsample"`
	Loss           Loss    `json:"loss"`

	// HuberQuantile is the quantile of absolute residuals past which the huber loss turns linear.
	HuberQuantile float64 `json:"huber_quantile"`
	Seed          uint64  `json:"seed"`
}

func NewDefaultGradientBoostingOptions() *GradientBoostingOptions {
	return &GradientBoostingOptions{
		Rounds:         300,
		LearningRate:   0.05,
		MaxDepth:       4,
		MinSamplesLeaf: 1,
		Subsample:      0.9,
		Loss:           LossHuber,
		HuberQuantile:  0.9,
		Seed:           42,
	}
}

func (o *GradientBoostingOptions) Validate() (*GradientBoostingOptions, error) {
	if o == nil {
		return NewDefaultGradientBoostingOptions(), nil
	}
	if o.Rounds <= 0 {
		return nil, ErrInvalidRounds
	}
	if o.LearningRate <= 0 || o.LearningRate > 1 {
		return nil, ErrInvalidRate
	}
	if o.MaxDepth <= 0 {
		return nil, ErrInvalidDepth
	}
	if o.Subsample <= 0 || o.Subsample > 1 {
		return nil, ErrInvalidFraction
	}
	switch o.Loss {
	case "":
		o.Loss = LossSquared
	case LossSquared, LossHuber:
	default:
		return nil, fmt.Errorf("%q, %w", o.Loss, ErrUnknownLoss)
	}
	if o.HuberQuantile <= 0 || o.HuberQuantile >= 1 {
		o.HuberQuantile = 0.9
	}
	if o.MinSamplesLeaf < 1 {
		o.MinSamplesLeaf = 1
	}
	return o, nil
}

// GradientBoosting is a stagewise additive tree model. Each round fits a tree to the negative
// gradient of the loss on a row subsample and adds it scaled by the learning rate.
type GradientBoosting struct {
	Options  *GradientBoostingOptions `json:"options"`
	Features int                      `json:"features"`
	Init     float64                  `json:"init"`
	Trees    []*Tree                  `json:"trees"`
}

func NewGradientBoosting(opt *GradientBoostingOptions) (*GradientBoosting, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &GradientBoosting{Options: opt}, nil
}

func (b *GradientBoosting) Fit(x, y mat.Matrix) error {
	if b.Options == nil {
		return ErrNoOptions
	}
	xd, ys, err := fitInputs(x, y)
	if err != nil {
		return err
	}
	m, n := xd.Dims()
	opt := b.Options

	init := stat.Mean(ys, nil)
	if opt.Loss == LossHuber {
		init = quantile(ys, 0.5)
	}
	pred := make([]float64, m)
	for i := range pred {
		pred[i] = init
	}

	rng := rand.New(rand.NewPCG(opt.Seed, 0))
	params := treeParams{
		maxDepth:       opt.MaxDepth,
		minSamplesLeaf: opt.MinSamplesLeaf,
		maxFeatures:    1,
	}
	features := indices(n)
	g := make([]float64, m)
	h := make([]float64, m)
	resid := make([]float64, m)
	absResid := make([]float64, m)
	row := make([]float64, n)

	trees := make([]*Tree, 0, opt.Rounds)
	for range opt.Rounds {
		for i := range resid {
			resid[i] = ys[i] - pred[i]
			absResid[i] = math.Abs(resid[i])
		}
		delta := math.Inf(1)
		if opt.Loss == LossHuber {
			delta = quantile(absResid, opt.HuberQuantile)
		}
		for i, r := range resid {
			neg := r
			if math.Abs(r) > delta {
				neg = math.Copysign(delta, r)
			}
			g[i] = -neg
			h[i] = 1
		}

		rows := sampleRows(m, opt.Subsample, rng.Perm)
		t := growTree(xd, rows, g, h, features, params, rng)
		trees = append(trees, t)
		for i := range pred {
			mat.Row(row, i, xd)
			pred[i] += opt.LearningRate * t.predictRow(row)
		}
	}

	b.Features = n
	b.Init = init
	b.Trees = trees
	return nil
}

func (b *GradientBoosting) Predict(x mat.Matrix) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkFeatures(x, b.Features); err != nil {
		return nil, err
	}
	return treeRows(x, func(row []float64) float64 {
		v := b.Init
		for _, t := range b.Trees {
			v += b.Options.LearningRate * t.predictRow(row)
		}
		return v
	}), nil
}

func (b *GradientBoosting) Importances() []float64 {
	return importances(b.Trees, b.Features)
}
