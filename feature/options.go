package feature

import (
	"errors"
	"fmt"

	"github.com/carbonwise/go-forecaster/event"
)

var (
	ErrInvalidLag    = errors.New("lag periods must be positive")
	ErrInvalidWindow = errors.New("rolling window must be positive")
	ErrInvalidBounds = errors.New("invalid clamp bounds")
)

// Options configures the feature engine and the future projector. Options are immutable once an
// Engine is created from them.
type Options struct {
	Lags          []int `json:"lags"`
	Windows       []int `json:"windows"`
	ChangePeriods []int `json:"change_periods"`

	// TrendShort and TrendLong are the trailing windows compared by the trend indicator.
	TrendShort int `json:"trend_short"`
	TrendLong  int `json:"trend_long"`

	Semester       bool `json:"semester"`
	CalendarCounts bool `json:"calendar_counts"`

	Indicators map[Resource][]MonthSet `json:"-"`
	Calendar   *event.Calendar         `json:"-"`

	// ProjectionWindow is how many trailing observations seed a projection.
	ProjectionWindow int `json:"projection_window"`

	// ScaleLags multiplies projected lag values by the clamped ratio of the target month's seasonal
	// index to the source month's.
	ScaleLags bool `json:"scale_lags"`

	// ShortChangeBound clamps projected change rates under twelve periods, LongChangeBound the rest.
	ShortChangeBound float64 `json:"short_change_bound"`
	LongChangeBound  float64 `json:"long_change_bound"`

	SeasonalRatioMin float64 `json:"seasonal_ratio_min"`
	SeasonalRatioMax float64 `json:"seasonal_ratio_max"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Lags:             []int{1, 2, 3, 6, 12},
		Windows:          []int{3, 6, 12},
		ChangePeriods:    []int{1, 3, 12},
		TrendShort:       3,
		TrendLong:        12,
		Semester:         true,
		CalendarCounts:   true,
		Indicators:       DefaultIndicators(),
		Calendar:         event.NewCalendar(),
		ProjectionWindow: 24,
		ScaleLags:        true,
		ShortChangeBound: 0.5,
		LongChangeBound:  0.3,
		SeasonalRatioMin: 0.5,
		SeasonalRatioMax: 2.0,
	}
}

// Validate runs basic validation on the options filling unset fields with defaults
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	def := NewDefaultOptions()
	opt := *o

	for _, k := range append(append([]int{}, opt.Lags...), opt.ChangePeriods...) {
		if k <= 0 {
			return nil, fmt.Errorf("got %d, %w", k, ErrInvalidLag)
		}
	}
	for _, w := range opt.Windows {
		if w <= 0 {
			return nil, fmt.Errorf("got %d, %w", w, ErrInvalidWindow)
		}
	}
	if opt.Lags == nil {
		opt.Lags = def.Lags
	}
	if opt.Windows == nil {
		opt.Windows = def.Windows
	}
	if opt.ChangePeriods == nil {
		opt.ChangePeriods = def.ChangePeriods
	}
	if opt.TrendShort <= 0 {
		opt.TrendShort = def.TrendShort
	}
	if opt.TrendLong <= 0 {
		opt.TrendLong = def.TrendLong
	}
	if opt.Indicators == nil {
		opt.Indicators = def.Indicators
	}
	if opt.Calendar == nil {
		opt.Calendar = def.Calendar
	}
	if opt.ProjectionWindow <= 0 {
		opt.ProjectionWindow = def.ProjectionWindow
	}
	if opt.ShortChangeBound <= 0 {
		opt.ShortChangeBound = def.ShortChangeBound
	}
	if opt.LongChangeBound <= 0 {
		opt.LongChangeBound = def.LongChangeBound
	}
	if opt.SeasonalRatioMin <= 0 {
		opt.SeasonalRatioMin = def.SeasonalRatioMin
	}
	if opt.SeasonalRatioMax <= 0 {
		opt.SeasonalRatioMax = def.SeasonalRatioMax
	}
	if opt.SeasonalRatioMin > opt.SeasonalRatioMax {
		return nil, fmt.Errorf("seasonal ratio min %.2f above max %.2f, %w",
			opt.SeasonalRatioMin, opt.SeasonalRatioMax, ErrInvalidBounds)
	}
	return &opt, nil
}
