package forecast

import (
	"fmt"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/models"
)

// Learner builds unfitted models of one kind.
type Learner interface {
	Kind() Kind

	// Scaled reports whether the design matrix is standardized before fitting.
	Scaled() bool

	// Sanitized reports whether the model records sanitized feature names.
	Sanitized() bool
	New() (models.Model, error)
}

// Profiles holds the hyperparameters of every learner kind.
type Profiles struct {
	RandomForest *models.RandomForestOptions `json:"rf"`

	// RandomForestWaterDepth overrides the forest depth for water series. 0 keeps the default.
	RandomForestWaterDepth int `json:"rf_water_depth"`

	GradientBoostedTrees *models.GradientBoostedTreesOptions `json:"xgb"`
	GradientBoosting     *models.GradientBoostingOptions     `json:"gb"`
}

func NewDefaultProfiles() *Profiles {
	return &Profiles{
		RandomForest:           models.NewDefaultRandomForestOptions(),
		RandomForestWaterDepth: 12,
		GradientBoostedTrees:   models.NewDefaultGradientBoostedTreesOptions(),
		GradientBoosting:       models.NewDefaultGradientBoostingOptions(),
	}
}

// Validate fills missing profiles with defaults and validates each one.
func (p *Profiles) Validate() (*Profiles, error) {
	if p == nil {
		return NewDefaultProfiles(), nil
	}
	var err error
	if p.RandomForest, err = p.RandomForest.Validate(); err != nil {
		return nil, fmt.Errorf("unable to validate %s profile, %w", KindRandomForest, err)
	}
	if p.GradientBoostedTrees, err = p.GradientBoostedTrees.Validate(); err != nil {
		return nil, fmt.Errorf("unable to validate %s profile, %w", KindGradientBoostedTrees, err)
	}
	if p.GradientBoosting, err = p.GradientBoosting.Validate(); err != nil {
		return nil, fmt.Errorf("unable to validate %s profile, %w", KindGradientBoosting, err)
	}
	return p, nil
}

// Learner returns the learner for a single model kind tuned for the resource.
func (p *Profiles) Learner(k Kind, r feature.Resource) (Learner, error) {
	switch k {
	case KindRandomForest:
		opt := *p.RandomForest
		if r == feature.Water && p.RandomForestWaterDepth > 0 {
			opt.MaxDepth = p.RandomForestWaterDepth
		}
		return forestLearner{opt}, nil
	case KindGradientBoostedTrees:
		return boostedTreesLearner{*p.GradientBoostedTrees}, nil
	case KindGradientBoosting:
		return boostingLearner{*p.GradientBoosting}, nil
	}
	return nil, fmt.Errorf("%q is not a learner, %w", k, ErrUnknownKind)
}

type forestLearner struct {
	opt models.RandomForestOptions
}

func (l forestLearner) Kind() Kind {
	return KindRandomForest
}

func (l forestLearner) Scaled() bool {
	return false
}

func (l forestLearner) Sanitized() bool {
	return false
}

func (l forestLearner) New() (models.Model, error) {
	opt := l.opt
	return models.NewRandomForest(&opt)
}

type boostedTreesLearner struct {
	opt models.GradientBoostedTreesOptions
}

func (l boostedTreesLearner) Kind() Kind {
	return KindGradientBoostedTrees
}

func (l boostedTreesLearner) Scaled() bool {
	return true
}

func (l boostedTreesLearner) Sanitized() bool {
	return true
}

func (l boostedTreesLearner) New() (models.Model, error) {
	opt := l.opt
	return models.NewGradientBoostedTrees(&opt)
}

type boostingLearner struct {
	opt models.GradientBoostingOptions
}

func (l boostingLearner) Kind() Kind {
	return KindGradientBoosting
}

func (l boostingLearner) Scaled() bool {
	return true
}

func (l boostingLearner) Sanitized() bool {
	return false
}

func (l boostingLearner) New() (models.Model, error) {
	opt := l.opt
	return models.NewGradientBoosting(&opt)
}

// emptyModel returns a zero model of the kind to decode a persisted artifact into.
func emptyModel(k Kind) (models.Model, error) {
	switch k {
	case KindRandomForest:
		return new(models.RandomForest), nil
	case KindGradientBoostedTrees:
		return new(models.GradientBoostedTrees), nil
	case KindGradientBoosting:
		return new(models.GradientBoosting), nil
	}
	return nil, fmt.Errorf("%q has no fitted model, %w", k, ErrUnknownKind)
}
