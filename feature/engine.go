package feature

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/carbonwise/go-forecaster/event"
	"github.com/carbonwise/go-forecaster/stats"
	"github.com/carbonwise/go-forecaster/timedataset"
)

var ErrNoPeriods = errors.New("no periods to build features for")

// Engine maps a monthly usage series to a feature table. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	opt *Options
	cal *event.Calendar
}

// New creates a feature engine from the options. A nil opt uses the defaults.
func New(opt *Options) (*Engine, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, fmt.Errorf("unable to validate feature options, %w", err)
	}
	return &Engine{opt: opt, cal: opt.Calendar}, nil
}

// Options returns the engine's options.
func (e *Engine) Options() *Options {
	return e.opt
}

// Schema returns the ordered features produced for a resource.
func (e *Engine) Schema(r Resource) ([]Feature, error) {
	if err := r.Valid(); err != nil {
		return nil, err
	}

	features := []Feature{
		NewTime(TimeYear),
		NewTime(TimeMonth),
		NewTime(TimeQuarter),
		NewTime(TimeSeason),
	}
	for _, ms := range e.opt.Indicators[r] {
		features = append(features, NewIndicator(ms.Name))
	}

	cycles := []Cycle{CycleMonth, CycleQuarter}
	if e.opt.Semester {
		cycles = append(cycles, CycleSemester)
	}
	for _, c := range cycles {
		features = append(features,
			NewSeasonality(c, FourierCompSin),
			NewSeasonality(c, FourierCompCos),
		)
	}

	features = append(features,
		NewGrowth(GrowthYearTrend),
		NewGrowth(GrowthYearTrendSq),
		NewGrowth(GrowthMonthIndex),
	)
	if e.opt.CalendarCounts {
		features = append(features, NewTime(TimeHolidayCount), NewTime(TimeWorkDays))
	}

	for _, k := range e.opt.Lags {
		features = append(features, NewLag(k))
	}
	for _, w := range e.opt.Windows {
		features = append(features,
			NewRolling(RollingMean, w),
			NewRolling(RollingStd, w),
			NewRolling(RollingMin, w),
			NewRolling(RollingMax, w),
		)
	}
	for _, k := range e.opt.ChangePeriods {
		features = append(features, NewChange(k))
	}
	features = append(features,
		NewRatio(RatioSeasonalIndex),
		NewRatio(RatioSeasonalStrength),
		NewRatio(RatioTrendIndicator),
	)
	return features, nil
}

// Transform builds the historical feature table, one row per observed period. Usage-derived
// columns only look at rows before the current one, so no row sees its own target. base anchors
// the trend features; a zero base uses the first period of ts.
func (e *Engine) Transform(ts *timedataset.TimeDataset, r Resource, base time.Time) (*Set, error) {
	if ts.Len() == 0 {
		return nil, ErrNoPeriods
	}
	features, err := e.Schema(r)
	if err != nil {
		return nil, err
	}
	if base.IsZero() {
		base = ts.T[0]
	}

	n := ts.Len()
	seasonal := seasonalIndex(ts)
	indicators := e.indicatorSets(r)

	set := NewSet()
	for _, f := range features {
		col := make([]float64, n)
		switch {
		case !UsageDerived(f):
			for i, p := range ts.T {
				col[i] = e.periodValue(f, p, base, indicators)
			}
		case f.Type() == FeatureTypeRatio && f.String() != RatioTrendIndicator:
			for i, p := range ts.T {
				col[i] = ratioValue(f, seasonal[p.Month()])
			}
		default:
			for i := 0; i < n; i++ {
				col[i] = e.usageValue(f, ts.Y, i)
			}
			if f.Type() == FeatureTypeLag || f.Type() == FeatureTypeRolling {
				fillColumn(col)
			}
		}
		if err := set.Set(f, col); err != nil {
			return nil, err
		}
	}
	set.Sanitize()
	return set, nil
}

// Periods builds feature rows for periods with no usage. Calendar, indicator, cyclical and trend
// columns are computed; usage-derived columns hold their neutral defaults.
func (e *Engine) Periods(periods []time.Time, r Resource, base time.Time) (*Set, error) {
	if len(periods) == 0 {
		return nil, ErrNoPeriods
	}
	features, err := e.Schema(r)
	if err != nil {
		return nil, err
	}
	if base.IsZero() {
		base = timedataset.MonthStart(periods[0])
	}
	indicators := e.indicatorSets(r)

	set := NewSet()
	for _, f := range features {
		col := make([]float64, len(periods))
		for i, p := range periods {
			if UsageDerived(f) {
				col[i] = f.Default()
				continue
			}
			col[i] = e.periodValue(f, timedataset.MonthStart(p), base, indicators)
		}
		if err := set.Set(f, col); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (e *Engine) indicatorSets(r Resource) map[string]MonthSet {
	sets := make(map[string]MonthSet)
	for _, ms := range e.opt.Indicators[r] {
		sets[ms.Name] = ms
	}
	return sets
}

func (e *Engine) periodValue(f Feature, p, base time.Time, indicators map[string]MonthSet) float64 {
	month := int(p.Month())
	switch ft := f.(type) {
	case *Time:
		switch ft.Name {
		case TimeYear:
			return float64(p.Year())
		case TimeMonth:
			return float64(month)
		case TimeQuarter:
			return float64(Quarter(month))
		case TimeSeason:
			return float64(Season(month))
		case TimeHolidayCount:
			return float64(e.cal.HolidayCount(p))
		case TimeWorkDays:
			return float64(e.cal.WorkDays(p))
		}
	case *Indicator:
		if indicators[ft.Name].Contains(month) {
			return 1
		}
		return 0
	case *Seasonality:
		return ft.Value(month)
	case *Growth:
		yt := float64(p.Year() - base.Year())
		switch ft.Name {
		case GrowthYearTrend:
			return yt
		case GrowthYearTrendSq:
			return yt * yt
		case GrowthMonthIndex:
			return float64(timedataset.MonthsBetween(base, p))
		}
	}
	return f.Default()
}

// usageValue computes a usage-derived feature for position pos of y from y[:pos]. Undefined
// values are NaN.
func (e *Engine) usageValue(f Feature, y []float64, pos int) float64 {
	switch ft := f.(type) {
	case *Lag:
		if pos-ft.Periods < 0 {
			return math.NaN()
		}
		return y[pos-ft.Periods]
	case *Rolling:
		w := stats.Trailing(y, pos, ft.Window)
		switch ft.Stat {
		case RollingMean:
			return stats.Mean(w)
		case RollingStd:
			if len(w) == 0 {
				return math.NaN()
			}
			return stats.StdDev(w)
		case RollingMin:
			return stats.Min(w)
		case RollingMax:
			return stats.Max(w)
		}
	case *Change:
		if pos-1-ft.Periods < 0 {
			return 0
		}
		return stats.RatioChange(y[pos-1], y[pos-1-ft.Periods])
	case *Ratio:
		if ft.Name == RatioTrendIndicator {
			short := stats.Mean(stats.Trailing(y, pos, e.opt.TrendShort))
			long := stats.Mean(stats.Trailing(y, pos, e.opt.TrendLong))
			return stats.RatioChange(short, long)
		}
	}
	return f.Default()
}

func ratioValue(f Feature, index float64) float64 {
	switch f.String() {
	case RatioSeasonalIndex:
		return index
	case RatioSeasonalStrength:
		return math.Abs(index - 1)
	}
	return f.Default()
}

// seasonalIndex returns the per-month mean usage divided by the overall mean. Months without
// observations and series with a zero mean get 1.
func seasonalIndex(ts *timedataset.TimeDataset) [13]float64 {
	months := make([]int, ts.Len())
	for i, p := range ts.T {
		months[i] = int(p.Month())
	}
	means, overall := stats.MonthlyMeans(months, ts.Y)

	var idx [13]float64
	for m := 1; m <= 12; m++ {
		idx[m] = 1.0
		if overall == 0 || math.IsNaN(overall) || math.IsNaN(means[m]) {
			continue
		}
		idx[m] = means[m] / overall
	}
	return idx
}

// fillColumn forward fills then backward fills NaN values, any remaining NaN becomes 0.
func fillColumn(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
			continue
		}
		last = v
	}
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
			continue
		}
		next = col[i]
	}
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = 0
		}
	}
}
