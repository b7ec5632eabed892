package models

import (
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type RandomForestOptions struct {
	Trees          int     `json:"trees"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	MaxFeatures    float64 `json:"max_features"`
	Bootstrap      bool    `json:"bootstrap"`
	Seed           uint64  `json:"seed"`

	// Workers bounds the number of trees grown concurrently. Defaults to GOMAXPROCS.
	Workers int `json:"-"`
}

func NewDefaultRandomForestOptions() *RandomForestOptions {
	return &RandomForestOptions{
		Trees:          200,
		MaxDepth:       10,
		MinSamplesLeaf: 1,
		MaxFeatures:    1.0 / 3.0,
		Bootstrap:      true,
		Seed:           42,
	}
}

func (o *RandomForestOptions) Validate() (*RandomForestOptions, error) {
	if o == nil {
		return NewDefaultRandomForestOptions(), nil
	}
	if o.Trees <= 0 {
		return nil, ErrInvalidRounds
	}
	if o.MaxDepth <= 0 {
		return nil, ErrInvalidDepth
	}
	if o.MaxFeatures <= 0 || o.MaxFeatures > 1 {
		return nil, ErrInvalidFraction
	}
	if o.MinSamplesLeaf < 1 {
		o.MinSamplesLeaf = 1
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o, nil
}

// RandomForest averages regression trees each grown on a bootstrap sample, considering a random
// subset of features at every split. Tree i draws from its own PCG stream so the fit is
// reproducible for a given seed regardless of how many workers grow it.
type RandomForest struct {
	Options  *RandomForestOptions `json:"options"`
	Features int                  `json:"features"`
	Trees    []*Tree              `json:"trees"`
}

func NewRandomForest(opt *RandomForestOptions) (*RandomForest, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &RandomForest{Options: opt}, nil
}

func (f *RandomForest) Fit(x, y mat.Matrix) error {
	if f.Options == nil {
		return ErrNoOptions
	}
	xd, ys, err := fitInputs(x, y)
	if err != nil {
		return err
	}
	m, n := xd.Dims()

	g := make([]float64, m)
	h := make([]float64, m)
	for i, v := range ys {
		g[i] = -v
		h[i] = 1
	}
	params := treeParams{
		maxDepth:       f.Options.MaxDepth,
		minSamplesLeaf: f.Options.MinSamplesLeaf,
		maxFeatures:    f.Options.MaxFeatures,
	}
	features := indices(n)

	trees := make([]*Tree, f.Options.Trees)
	var eg errgroup.Group
	eg.SetLimit(max(f.Options.Workers, 1))
	for i := range trees {
		eg.Go(func() error {
			rng := rand.New(rand.NewPCG(f.Options.Seed, uint64(i)))
			rows := indices(m)
			if f.Options.Bootstrap {
				for k := range rows {
					rows[k] = rng.IntN(m)
				}
			}
			trees[i] = growTree(xd, rows, g, h, features, params, rng)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	f.Features = n
	f.Trees = trees
	return nil
}

func (f *RandomForest) Predict(x mat.Matrix) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkFeatures(x, f.Features); err != nil {
		return nil, err
	}
	scale := 1.0 / float64(len(f.Trees))
	return treeRows(x, func(row []float64) float64 {
		var sum float64
		for _, t := range f.Trees {
			sum += t.predictRow(row)
		}
		return sum * scale
	}), nil
}

func (f *RandomForest) Importances() []float64 {
	return importances(f.Trees, f.Features)
}
