package feature

import (
	"math"
	"testing"
	"time"

	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func linearSeries(t *testing.T, start time.Time, n int, base float64) *timedataset.TimeDataset {
	t.Helper()
	ts, err := timedataset.NewMonthlyDataset(
		timedataset.GenerateMonths(start, n),
		timedataset.GenerateTrendY(n, base, 1),
	)
	require.Nil(t, err)
	return ts
}

func TestOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt *Options
		err error
	}{
		"nil":        {nil, nil},
		"empty":      {&Options{}, nil},
		"bad lag":    {&Options{Lags: []int{0}}, ErrInvalidLag},
		"bad change": {&Options{ChangePeriods: []int{-1}}, ErrInvalidLag},
		"bad window": {&Options{Windows: []int{0}}, ErrInvalidWindow},
		"bad bounds": {&Options{SeasonalRatioMin: 3, SeasonalRatioMax: 2}, ErrInvalidBounds},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, []int{1, 2, 3, 6, 12}, opt.Lags)
			assert.NotNil(t, opt.Calendar)
			assert.Equal(t, 24, opt.ProjectionWindow)
		})
	}
}

func TestSchema(t *testing.T) {
	e, err := New(nil)
	require.Nil(t, err)

	testData := map[string]struct {
		resource   Resource
		indicators []string
	}{
		"electricity": {Electricity, []string{"HeatingMonth", "CoolingMonth", "HolidayMonth"}},
		"water":       {Water, []string{"HolidayMonth", "SummerMonth"}},
		"naturalgas":  {NaturalGas, []string{"HeatingMonth", "NonHeatingMonth", "TransitionMonth"}},
		"paper":       {Paper, []string{"AcademicMonth", "ExamMonth", "HolidayMonth"}},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			features, err := e.Schema(td.resource)
			require.Nil(t, err)
			names := make([]string, len(features))
			for i, f := range features {
				names[i] = f.String()
			}
			assert.Equal(t, []string{"Year", "Month", "Quarter", "Season"}, names[:4])
			assert.Equal(t, td.indicators, names[4:4+len(td.indicators)])
			assert.Len(t, names, 38+len(td.indicators))
			assert.Contains(t, names, "UsageLag12")
			assert.Contains(t, names, "RollingMax12")
			assert.Contains(t, names, "PctChange12")
			assert.Equal(t, "TrendIndicator", names[len(names)-1])
		})
	}

	_, err = e.Schema(Resource("steam"))
	assert.ErrorIs(t, err, ErrInvalidResource)
}

func TestTransform(t *testing.T) {
	e, err := New(nil)
	require.Nil(t, err)

	ts := linearSeries(t, month(2020, 1), 14, 100)
	set, err := e.Transform(ts, Water, time.Time{})
	require.Nil(t, err)
	require.Equal(t, 14, set.Len())
	assert.True(t, set.Finite())

	col := func(name string) []float64 {
		c, ok := set.Get(name)
		require.True(t, ok, name)
		return c
	}

	assert.Equal(t, []float64{100, 100, 101, 102}, col("UsageLag1")[:4])
	assert.Equal(t, 112.0, col("UsageLag1")[13])
	assert.Equal(t, 100.0, col("UsageLag12")[0])
	assert.Equal(t, 101.0, col("UsageLag12")[13])

	assert.Equal(t, 100.0, col("RollingMean3")[0])
	assert.Equal(t, 102.0, col("RollingMean3")[4])
	assert.Equal(t, 0.0, col("RollingStd3")[1])
	assert.Equal(t, 1.0, col("RollingStd3")[4])
	assert.Equal(t, 101.0, col("RollingMin3")[4])
	assert.Equal(t, 103.0, col("RollingMax3")[4])

	assert.Equal(t, 0.0, col("PctChange1")[1])
	assert.InDelta(t, 0.01, col("PctChange1")[2], 1e-12)
	assert.InDelta(t, 12.0/100.0, col("PctChange12")[13], 1e-12)

	assert.InDelta(t, 106.0/106.5, col("SeasonalIndex")[0], 1e-12)
	assert.InDelta(t, math.Abs(106.0/106.5-1), col("SeasonalStrength")[12], 1e-12)
	assert.Equal(t, 0.0, col("TrendIndicator")[0])
	assert.Equal(t, 0.0, col("TrendIndicator")[1])

	assert.Equal(t, 2021.0, col("Year")[12])
	assert.Equal(t, 1.0, col("YearTrend")[12])
	assert.Equal(t, 1.0, col("YearTrendSq")[12])
	assert.Equal(t, 12.0, col("MonthIndex")[12])
	assert.Equal(t, 1.0, col("HolidayMonth")[6])
	assert.Equal(t, 0.0, col("SummerMonth")[4])
	assert.InDelta(t, math.Sin(2*math.Pi/12), col("MonthSin")[0], 1e-12)
	assert.Equal(t, 1.0, col("HolidayCount")[0])
}

func TestTransformDeterministic(t *testing.T) {
	e, err := New(nil)
	require.Nil(t, err)

	for _, r := range Resources {
		ts := linearSeries(t, month(2019, 6), 30, 50)
		a, err := e.Transform(ts, r, time.Time{})
		require.Nil(t, err)
		b, err := e.Transform(ts, r, time.Time{})
		require.Nil(t, err)
		assert.Equal(t, a, b)
		assert.True(t, a.Finite())
	}
}

func TestTransformShortSeries(t *testing.T) {
	e, err := New(nil)
	require.Nil(t, err)

	ts := linearSeries(t, month(2020, 1), 1, 42)
	set, err := e.Transform(ts, Electricity, time.Time{})
	require.Nil(t, err)
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Finite())

	lag, _ := set.Get("UsageLag1")
	assert.Equal(t, []float64{0}, lag)
	idx, _ := set.Get("SeasonalIndex")
	assert.Equal(t, []float64{1}, idx)

	_, err = e.Transform(&timedataset.TimeDataset{}, Electricity, time.Time{})
	assert.ErrorIs(t, err, ErrNoPeriods)
}

func TestPeriods(t *testing.T) {
	e, err := New(nil)
	require.Nil(t, err)

	set, err := e.Periods(timedataset.GenerateMonths(month(2022, 7), 2), NaturalGas, month(2020, 1))
	require.Nil(t, err)
	assert.Equal(t, 2, set.Len())

	idx, _ := set.Get("SeasonalIndex")
	assert.Equal(t, []float64{1, 1}, idx)
	lag, _ := set.Get("UsageLag1")
	assert.Equal(t, []float64{0, 0}, lag)
	mi, _ := set.Get("MonthIndex")
	assert.Equal(t, []float64{30, 31}, mi)
	nh, _ := set.Get("NonHeatingMonth")
	assert.Equal(t, []float64{1, 1}, nh)
}
