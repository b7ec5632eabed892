package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrailing(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5}
	testData := map[string]struct {
		end      int
		w        int
		expected []float64
	}{
		"no history":    {0, 3, nil},
		"partial":       {2, 3, []float64{1, 2}},
		"full window":   {5, 3, []float64{3, 4, 5}},
		"end past data": {10, 2, []float64{4, 5}},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, Trailing(y, td.end, td.w))
		})
	}
}

func TestWindowStats(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(Min(nil)))
	assert.True(t, math.IsNaN(Max(nil)))
	assert.Equal(t, 0.0, StdDev([]float64{4}))

	x := []float64{2, 4, 6}
	assert.Equal(t, 4.0, Mean(x))
	assert.Equal(t, 2.0, StdDev(x))
	assert.Equal(t, 2.0, Min(x))
	assert.Equal(t, 6.0, Max(x))
}

func TestRatioChange(t *testing.T) {
	testData := map[string]struct {
		curr, prev float64
		expected   float64
	}{
		"increase":  {15, 10, 0.5},
		"decrease":  {5, 10, -0.5},
		"zero prev": {5, 0, 0},
		"nan prev":  {5, math.NaN(), 0},
		"nan curr":  {math.NaN(), 5, 0},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, td.expected, RatioChange(td.curr, td.prev), 1e-12)
		})
	}
}

func TestClampFinite(t *testing.T) {
	assert.Equal(t, 0.5, Clamp(0.9, -0.5, 0.5))
	assert.Equal(t, -0.3, Clamp(-1, -0.3, 0.3))
	assert.Equal(t, 0.1, Clamp(0.1, -0.3, 0.3))
	assert.Equal(t, 7.0, Finite(math.Inf(1), 7))
	assert.Equal(t, 0.0, Finite(math.NaN(), 0))
	assert.Equal(t, 2.0, Finite(2, 0))
}

func TestMonthlyMeans(t *testing.T) {
	means, overall := MonthlyMeans([]int{1, 2, 1, 2}, []float64{10, 20, 30, 40})
	assert.Equal(t, 20.0, means[1])
	assert.Equal(t, 30.0, means[2])
	assert.True(t, math.IsNaN(means[3]))
	assert.Equal(t, 25.0, overall)
}

func TestDetectOutliers(t *testing.T) {
	y := []float64{10, 11, 9, 10, 100, 10, 12, -50}
	assert.Equal(t, []int{4, 7}, DetectOutliers(y, 0.25, 0.75, 1.5))
	assert.Nil(t, DetectOutliers(nil, 0.25, 0.75, 1.5))
	assert.Nil(t, DetectOutliers([]float64{1, 1, 1}, 0.25, 0.75, 1.5))
}
