package timedataset

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestNewMonthlyDataset(t *testing.T) {
	testData := map[string]struct {
		t        []time.Time
		y        []float64
		expected *TimeDataset
		err      error
	}{
		"no training data": {
			err: ErrNoTrainingData,
		},
		"length mismatch": {
			y:   []float64{1},
			err: ErrDatasetLenMismatch,
		},
		"non increasing months": {
			t:   []time.Time{month(2020, 2), month(2020, 1)},
			y:   []float64{1, 2},
			err: ErrNonMonotonic,
		},
		"duplicate month": {
			t:   []time.Time{time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 20, 0, 0, 0, 0, time.UTC)},
			y:   []float64{1, 2},
			err: ErrNonMonotonic,
		},
		"all non-positive": {
			t:   []time.Time{month(2020, 1), month(2020, 2)},
			y:   []float64{0, -1},
			err: ErrNoTrainingData,
		},
		"valid truncates to month start and drops zeros": {
			t: []time.Time{
				time.Date(2020, 1, 15, 10, 0, 0, 0, time.UTC),
				month(2020, 2),
				month(2020, 3),
			},
			y: []float64{1, 0, 3},
			expected: &TimeDataset{
				T: []time.Time{month(2020, 1), month(2020, 3)},
				Y: []float64{1, 3},
			},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := NewMonthlyDataset(td.t, td.y)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, res)
		})
	}
}

func TestFromObservations(t *testing.T) {
	obs := []Observation{
		{Period: time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC), Usage: decimal.RequireFromString("0.1")},
		{Period: time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), Usage: decimal.RequireFromString("10.5")},
		{Period: time.Date(2021, 2, 20, 0, 0, 0, 0, time.UTC), Usage: decimal.RequireFromString("0.2")},
		{Period: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), Usage: decimal.Zero},
	}
	res, err := FromObservations(obs)
	require.Nil(t, err)
	assert.Equal(t, []time.Time{month(2021, 1), month(2021, 2)}, res.T)
	assert.Equal(t, []float64{10.5, 0.3}, res.Y)

	_, err = FromObservations(nil)
	assert.ErrorIs(t, err, ErrNoTrainingData)
}

func TestValidate(t *testing.T) {
	testData := map[string]struct {
		n   int
		err error
	}{
		"twelve months":   {12, ErrInsufficientData},
		"thirteen months": {13, nil},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			ts, err := NewMonthlyDataset(GenerateMonths(month(2020, 1), td.n), GenerateConstY(td.n, 5))
			require.Nil(t, err)
			err = ts.Validate(MinObservations)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			assert.Nil(t, err)
		})
	}
}

func TestHeadTail(t *testing.T) {
	ts, err := NewMonthlyDataset(GenerateMonths(month(2020, 1), 5), []float64{1, 2, 3, 4, 5})
	require.Nil(t, err)

	head := ts.Head(2)
	assert.Equal(t, []float64{1, 2}, head.Y)
	tail := ts.Tail(2)
	assert.Equal(t, []float64{4, 5}, tail.Y)
	assert.Equal(t, month(2020, 4), tail.T[0])

	assert.Equal(t, 5, ts.Tail(10).Len())
	assert.Equal(t, 0, ts.Head(-1).Len())

	tail.Y[0] = 100
	assert.Equal(t, 4.0, ts.Y[3])
}

func TestToObservations(t *testing.T) {
	td, err := NewMonthlyDataset([]time.Time{month(2023, 1), month(2023, 2)}, []float64{1.5, 2})
	require.Nil(t, err)

	obs := ToObservations(td)
	require.Len(t, obs, 2)
	assert.Equal(t, month(2023, 2), obs[1].Period)
	assert.True(t, decimal.RequireFromString("1.5").Equal(obs[0].Usage))

	back, err := FromObservations(obs)
	require.Nil(t, err)
	assert.Equal(t, td, back)
}
