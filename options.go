package forecaster

import (
	"log/slog"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/metrics"
)

// Options configures a Forecaster. It is read once by New and never modified afterwards.
type Options struct {
	Features *feature.Options  `json:"features"`
	Trainer  *forecast.Options `json:"trainer"`

	// MaxConcurrentTrains bounds the training runs executing at once.
	MaxConcurrentTrains int64 `json:"max_concurrent_trains"`

	// FlatTolerance is the relative spread below which a multi-period forecast is treated as a
	// degenerate flat line.
	FlatTolerance float64 `json:"flat_tolerance"`

	Logger  *slog.Logger     `json:"-"`
	Metrics *metrics.Metrics `json:"-"`
}

// NewDefaultOptions returns the default feature, trainer and concurrency settings.
func NewDefaultOptions() *Options {
	return &Options{
		Features:            feature.NewDefaultOptions(),
		Trainer:             forecast.NewDefaultOptions(),
		MaxConcurrentTrains: 2,
		FlatTolerance:       1e-9,
	}
}

func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	opt := *o
	features, err := opt.Features.Validate()
	if err != nil {
		return nil, err
	}
	opt.Features = features

	trainer := forecast.NewDefaultOptions()
	if opt.Trainer != nil {
		t := *opt.Trainer
		trainer = &t
	}
	if trainer.Logger == nil {
		trainer.Logger = opt.Logger
	}
	if opt.Trainer, err = trainer.Validate(); err != nil {
		return nil, err
	}

	if opt.MaxConcurrentTrains <= 0 {
		opt.MaxConcurrentTrains = 2
	}
	if opt.FlatTolerance <= 0 {
		opt.FlatTolerance = 1e-9
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &opt, nil
}
