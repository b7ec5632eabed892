package feature

import (
	"math"
	"time"

	"github.com/carbonwise/go-forecaster/stats"
	"github.com/carbonwise/go-forecaster/timedataset"
)

// Projector synthesizes feature rows for the months following a historical series. Projection is
// sequential: the row for period i+1 is built from the history tail plus every value observed for
// periods up to i, so callers must Observe each prediction before asking for the Next row.
type Projector struct {
	engine   *Engine
	resource Resource
	base     time.Time

	ext     []float64
	months  []int
	histLen int
	next    time.Time
	step    int

	seasonal [13]float64
	trend    float64
	level    float64
}

// NewProjector seeds a projection from the tail of ts. The seasonal index and trend estimate are
// computed once over the whole history. base anchors the trend features and should be the trend
// base recorded at training time; a zero base uses the first period of ts.
func (e *Engine) NewProjector(ts *timedataset.TimeDataset, r Resource, base time.Time) (*Projector, error) {
	if ts.Len() == 0 {
		return nil, ErrNoPeriods
	}
	if _, err := e.Schema(r); err != nil {
		return nil, err
	}
	if base.IsZero() {
		base = ts.T[0]
	}

	tail := ts.Tail(e.opt.ProjectionWindow)
	months := make([]int, tail.Len())
	for i, p := range tail.T {
		months[i] = int(p.Month())
	}

	p := &Projector{
		engine:   e,
		resource: r,
		base:     base,
		ext:      tail.Y,
		months:   months,
		histLen:  tail.Len(),
		next:     timedataset.AddMonths(ts.T[ts.Len()-1], 1),
		seasonal: seasonalIndex(ts),
		trend:    conservativeTrend(ts.Y),
	}
	p.level = p.deseasonalizedLevel()
	return p, nil
}

// conservativeTrend is the per-period slope between the mean of the first and last six values,
// spread over the whole series length.
func conservativeTrend(y []float64) float64 {
	n := len(y)
	k := min(6, n)
	if k == 0 {
		return 0
	}
	return (stats.Mean(y[n-k:]) - stats.Mean(y[:k])) / float64(n)
}

func (p *Projector) deseasonalizedLevel() float64 {
	start := max(p.histLen-12, 0)
	var sum float64
	for i := start; i < p.histLen; i++ {
		sum += p.ext[i] / p.seasonal[p.months[i]]
	}
	return sum / float64(p.histLen-start)
}

// Period returns the period the next row is built for.
func (p *Projector) Period() time.Time {
	return p.next
}

// Seasonal returns the seasonal index of a calendar month.
func (p *Projector) Seasonal(month time.Month) float64 {
	return p.seasonal[month]
}

// Trend returns the conservative per-period trend estimate.
func (p *Projector) Trend() float64 {
	return p.trend
}

// Baseline returns a seasonal naive estimate for the current period: the recent deseasonalized
// level times the month's seasonal index plus the conservative trend.
func (p *Projector) Baseline() float64 {
	v := p.level*p.seasonal[p.next.Month()] + p.trend*float64(p.step+1)
	return math.Max(stats.Finite(v, 0), 0)
}

// Next returns a single row feature set for Period. The calendar and trend columns come from
// Engine.Periods; usage-derived columns are filled from the history tail and observed predictions.
func (p *Projector) Next() (*Set, error) {
	row, err := p.engine.Periods([]time.Time{p.next}, p.resource, p.base)
	if err != nil {
		return nil, err
	}
	pos := len(p.ext)
	month := int(p.next.Month())
	opt := p.engine.opt

	for _, f := range row.Labels().Labels() {
		if !UsageDerived(f) {
			continue
		}
		var v float64
		switch ft := f.(type) {
		case *Lag:
			src := max(pos-ft.Periods, 0)
			v = p.ext[src]
			if opt.ScaleLags {
				ratio := p.seasonal[month] / p.seasonal[p.months[src]]
				v *= stats.Clamp(stats.Finite(ratio, 1), opt.SeasonalRatioMin, opt.SeasonalRatioMax)
			}
			v = math.Max(v, 0)
		case *Rolling:
			v = math.Max(p.engine.usageValue(f, p.ext, pos), 0)
		case *Change:
			bound := opt.ShortChangeBound
			if ft.Periods >= 12 {
				bound = opt.LongChangeBound
			}
			v = stats.Clamp(p.engine.usageValue(f, p.ext, pos), -bound, bound)
		case *Ratio:
			if ft.Name == RatioTrendIndicator {
				v = p.engine.usageValue(f, p.ext, pos)
			} else {
				v = ratioValue(f, p.seasonal[month])
			}
		}
		if err := row.Set(f, []float64{stats.Finite(v, 0)}); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Observe records the prediction for Period and advances to the following month. Negative or
// non-finite predictions are recorded as 0.
func (p *Projector) Observe(pred float64) {
	p.ext = append(p.ext, math.Max(stats.Finite(pred, 0), 0))
	p.months = append(p.months, int(p.next.Month()))
	p.next = timedataset.AddMonths(p.next, 1)
	p.step++
}

// Project runs the sequential loop for h periods calling predict with each synthetic row.
func (p *Projector) Project(h int, predict func(row *Set) (float64, error)) ([]time.Time, []float64, error) {
	periods := make([]time.Time, 0, h)
	preds := make([]float64, 0, h)
	for i := 0; i < h; i++ {
		row, err := p.Next()
		if err != nil {
			return nil, nil, err
		}
		pred, err := predict(row)
		if err != nil {
			return nil, nil, err
		}
		pred = math.Max(stats.Finite(pred, 0), 0)
		periods = append(periods, p.Period())
		preds = append(preds, pred)
		p.Observe(pred)
	}
	return periods, preds, nil
}
