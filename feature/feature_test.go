package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testData := map[string]struct {
		name     string
		expected Feature
		err      error
	}{
		"time":        {"Month", NewTime(TimeMonth), nil},
		"indicator":   {"HeatingMonth", NewIndicator(IndicatorHeatingMonth), nil},
		"seasonality": {"QuarterCos", NewSeasonality(CycleQuarter, FourierCompCos), nil},
		"growth":      {"YearTrendSq", NewGrowth(GrowthYearTrendSq), nil},
		"lag":         {"UsageLag12", NewLag(12), nil},
		"rolling":     {"RollingStd6", NewRolling(RollingStd, 6), nil},
		"change":      {"PctChange3", NewChange(3), nil},
		"ratio":       {"SeasonalIndex", NewRatio(RatioSeasonalIndex), nil},
		"bad lag":     {"UsageLag0", nil, ErrUnknownFeature},
		"unknown":     {"Temperature", nil, ErrUnknownFeature},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			f, err := Parse(td.name)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, f)
			assert.Equal(t, td.name, f.String())
		})
	}
}

func TestDefaultValue(t *testing.T) {
	assert.Equal(t, 1.0, DefaultValue(RatioSeasonalIndex))
	assert.Equal(t, 0.0, DefaultValue(RatioSeasonalStrength))
	assert.Equal(t, 0.0, DefaultValue("UsageLag3"))
	assert.Equal(t, 0.0, DefaultValue("Unknown"))
}

func TestParseResource(t *testing.T) {
	testData := map[string]struct {
		input    string
		expected Resource
		err      error
	}{
		"electricity": {"Electricity", Electricity, nil},
		"water":       {"waters", Water, nil},
		"gas":         {"natural_gas", NaturalGas, nil},
		"paper":       {" paper ", Paper, nil},
		"invalid":     {"steam", "", ErrInvalidResource},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			r, err := ParseResource(td.input)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, r)
			assert.Nil(t, r.Valid())
		})
	}
	assert.ErrorIs(t, Resource("Water").Valid(), ErrInvalidResource)
}

func TestSeasonCalendar(t *testing.T) {
	seasons := []int{0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3, 0}
	quarters := []int{1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	for m := 1; m <= 12; m++ {
		assert.Equal(t, seasons[m-1], Season(m), "month %d", m)
		assert.Equal(t, quarters[m-1], Quarter(m), "month %d", m)
	}
}
