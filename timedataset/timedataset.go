// Package timedataset holds the monthly usage series the forecaster trains and projects from.
package timedataset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoTrainingData     = errors.New("no training data")
	ErrNonMonotonic       = errors.New("periods are not strictly increasing")
	ErrDatasetLenMismatch = errors.New("period slice has a different length than observations")
	ErrInsufficientData   = errors.New("insufficient monthly observations")
)

// MinObservations is the shortest series any training or prediction accepts: twelve lag months
// plus one target.
const MinObservations = 13

// Observation is a single raw usage reading. Several observations may share a period; they are
// summed when building a TimeDataset.
type Observation struct {
	Period time.Time       `json:"period"`
	Usage  decimal.Decimal `json:"usage"`
}

// TimeDataset is an ordered monthly usage series. Every period is the first instant of a month in
// UTC, periods are strictly increasing and every usage value is positive.
type TimeDataset struct {
	T []time.Time
	Y []float64
}

// NewMonthlyDataset returns a TimeDataset given a period and usage slice. Periods are truncated to
// the start of their month. Non-positive usage values are discarded as sensor artifacts.
func NewMonthlyDataset(t []time.Time, y []float64) (*TimeDataset, error) {
	if len(y) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(t) != len(y) {
		return nil, fmt.Errorf(
			"periods have length of %d, but values has a length of %d, %w",
			len(t), len(y), ErrDatasetLenMismatch,
		)
	}

	td := &TimeDataset{
		T: make([]time.Time, 0, len(t)),
		Y: make([]float64, 0, len(y)),
	}

	var lastT time.Time
	for i := 0; i < len(t); i++ {
		currT := MonthStart(t[i])
		if i > 0 && !currT.After(lastT) {
			return nil, fmt.Errorf("non-monotonic at %d, %w", i, ErrNonMonotonic)
		}
		lastT = currT
		if !(y[i] > 0) {
			continue
		}
		td.T = append(td.T, currT)
		td.Y = append(td.Y, y[i])
	}
	if len(td.Y) == 0 {
		return nil, ErrNoTrainingData
	}
	return td, nil
}

// FromObservations aggregates raw observations into a TimeDataset, summing readings that fall in
// the same month. Sums are taken in decimal so repeated small readings do not accumulate float
// rounding error.
func FromObservations(obs []Observation) (*TimeDataset, error) {
	if len(obs) == 0 {
		return nil, ErrNoTrainingData
	}

	sums := make(map[time.Time]decimal.Decimal)
	for _, o := range obs {
		p := MonthStart(o.Period)
		sums[p] = sums[p].Add(o.Usage)
	}

	periods := make([]time.Time, 0, len(sums))
	for p := range sums {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	y := make([]float64, len(periods))
	for i, p := range periods {
		y[i] = sums[p].InexactFloat64()
	}
	return NewMonthlyDataset(periods, y)
}

// ToObservations converts a series back into one observation per period.
func ToObservations(td *TimeDataset) []Observation {
	obs := make([]Observation, td.Len())
	for i := range obs {
		obs[i] = Observation{Period: td.T[i], Usage: decimal.NewFromFloat(td.Y[i])}
	}
	return obs
}

// Len returns the number of monthly observations.
func (td *TimeDataset) Len() int {
	if td == nil {
		return 0
	}
	return len(td.Y)
}

// Validate returns ErrInsufficientData if the dataset has fewer than minObs observations.
func (td *TimeDataset) Validate(minObs int) error {
	if td.Len() < minObs {
		return fmt.Errorf("got %d observations, need at least %d, %w", td.Len(), minObs, ErrInsufficientData)
	}
	return nil
}

func (td *TimeDataset) Copy() *TimeDataset {
	tSeries := make([]time.Time, len(td.T))
	ySeries := make([]float64, len(td.T))
	copy(tSeries, td.T)
	copy(ySeries, td.Y)
	return &TimeDataset{
		T: tSeries,
		Y: ySeries,
	}
}

// Head returns a copy of the first n observations.
func (td *TimeDataset) Head(n int) *TimeDataset {
	n = min(max(n, 0), td.Len())
	return (&TimeDataset{T: td.T[:n], Y: td.Y[:n]}).Copy()
}

// Tail returns a copy of the last n observations.
func (td *TimeDataset) Tail(n int) *TimeDataset {
	n = min(max(n, 0), td.Len())
	start := td.Len() - n
	return (&TimeDataset{T: td.T[start:], Y: td.Y[start:]}).Copy()
}
