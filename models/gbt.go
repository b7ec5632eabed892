package models

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type GradientBoostedTreesOptions struct {
	Rounds         int     `json:"rounds"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinChildWeight float64 `json:"min_child_weight"`
	Subsample      float64 `json:"subsample"`
	ColSample      float64 `json:"colsample_bytree"`

	// Alpha and Lambda are the L1 and L2 penalties on leaf weights.
	Alpha  float64 `json:"alpha"`
	Lambda float64 `json:"lambda"`
	Seed   uint64  `json:"seed"`
}

func NewDefaultGradientBoostedTreesOptions() *GradientBoostedTreesOptions {
	return &GradientBoostedTreesOptions{
		Rounds:         300,
		LearningRate:   0.05,
		MaxDepth:       4,
		MinChildWeight: 3,
		Subsample:      0.8,
		ColSample:      0.8,
		Alpha:          0.5,
		Lambda:         1.0,
		Seed:           42,
	}
}

func (o *GradientBoostedTreesOptions) Validate() (*GradientBoostedTreesOptions, error) {
	if o == nil {
		return NewDefaultGradientBoostedTreesOptions(), nil
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
	if o.Subsample <= 0 || o.Subsample > 1 || o.ColSample <= 0 || o.ColSample > 1 {
		return nil, ErrInvalidFraction
	}
	if o.Alpha < 0 || o.Lambda < 0 || o.MinChildWeight < 0 {
		return nil, ErrNegativePenalty
	}
	return o, nil
}

// GradientBoostedTrees boosts trees on second order statistics of the squared error with L1 and
// L2 regularized leaf weights. Each tree sees a row subsample and a column subsample.
type GradientBoostedTrees struct {
	Options   *GradientBoostedTreesOptions `json:"options"`
	Features  int                          `json:"features"`
	BaseScore float64                      `json:"base_score"`
	Trees     []*Tree                      `json:"trees"`
}

func NewGradientBoostedTrees(opt *GradientBoostedTreesOptions) (*GradientBoostedTrees, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &GradientBoostedTrees{Options: opt}, nil
}

func (b *GradientBoostedTrees) Fit(x, y mat.Matrix) error {
	if b.Options == nil {
		return ErrNoOptions
	}
	xd, ys, err := fitInputs(x, y)
	if err != nil {
		return err
	}
	m, n := xd.Dims()
	opt := b.Options

	base := stat.Mean(ys, nil)
	pred := make([]float64, m)
	for i := range pred {
		pred[i] = base
	}

	rng := rand.New(rand.NewPCG(opt.Seed, 0))
	params := treeParams{
		maxDepth:       opt.MaxDepth,
		minSamplesLeaf: 1,
		minChildWeight: opt.MinChildWeight,
		maxFeatures:    1,
		lambda:         opt.Lambda,
		alpha:          opt.Alpha,
	}
	g := make([]float64, m)
	h := make([]float64, m)
	row := make([]float64, n)
	k := max(int(math.Round(opt.ColSample*float64(n))), 1)

	trees := make([]*Tree, 0, opt.Rounds)
	for range opt.Rounds {
		for i := range g {
			g[i] = pred[i] - ys[i]
			h[i] = 1
		}
		rows := sampleRows(m, opt.Subsample, rng.Perm)
		cols := indices(n)
		if k < n {
			cols = rng.Perm(n)[:k]
			slices.Sort(cols)
		}

		t := growTree(xd, rows, g, h, cols, params, rng)
		trees = append(trees, t)
		for i := range pred {
			mat.Row(row, i, xd)
			pred[i] += opt.LearningRate * t.predictRow(row)
		}
	}

	b.Features = n
	b.BaseScore = base
	b.Trees = trees
	return nil
}

func (b *GradientBoostedTrees) Predict(x mat.Matrix) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkFeatures(x, b.Features); err != nil {
		return nil, err
	}
	return treeRows(x, func(row []float64) float64 {
		v := b.BaseScore
		for _, t := range b.Trees {
			v += b.Options.LearningRate * t.predictRow(row)
		}
		return v
	}), nil
}

func (b *GradientBoostedTrees) Importances() []float64 {
	return importances(b.Trees, b.Features)
}
