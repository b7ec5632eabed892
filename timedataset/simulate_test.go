package timedataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMonths(t *testing.T) {
	res := GenerateMonths(month(2020, 11), 3)
	assert.Equal(t, []time.Time{month(2020, 11), month(2020, 12), month(2021, 1)}, res)
}

func TestSeries(t *testing.T) {
	numPnts := 6
	s := Series(GenerateConstY(numPnts, 1))

	res := s.Add(GenerateConstY(numPnts, 2))
	require.Equal(t, Series([]float64{3, 3, 3, 3, 3, 3}), res)

	tSeries := GenerateMonths(month(2020, 1), numPnts)
	s.SetConst(tSeries, 2.0, month(2020, 3), month(2020, 5))
	assert.Equal(t, Series([]float64{3, 3, 2, 2, 3, 3}), s)

	s.MaskWithMonths(tSeries, time.March, time.June)
	assert.Equal(t, Series([]float64{0, 0, 2, 0, 0, 3}), s)

	assert.Equal(t, Series([]float64{10, 12, 14}), GenerateTrendY(3, 10, 2))
}

func TestGenerateNoiseDeterministic(t *testing.T) {
	a := GenerateNoise(10, 1.0, 42)
	b := GenerateNoise(10, 1.0, 42)
	assert.Equal(t, a, b)
}

func TestGenerateSeasonalY(t *testing.T) {
	y := GenerateSeasonalY(GenerateMonths(month(2020, 1), 24), 10, 0)
	assert.InDelta(t, y[0], y[12], 1e-9)
	assert.InDelta(t, 0.0, y[11], 1e-9)
}
